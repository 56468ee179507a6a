// Package metrics contains all application-logic metrics
package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	eventsReceived   = metrics.NewCounter("mevshare_events_received_total")
	eventsMalformed  = metrics.NewCounter("mevshare_events_malformed_total")
	streamReconnects = metrics.NewCounter("mevshare_stream_reconnects_total")
	landingsAwaited  = metrics.NewCounter("mevshare_landings_awaited_total")
	landingTimeouts  = metrics.NewCounter("mevshare_landing_timeouts_total")
)

func IncEventsReceived() {
	eventsReceived.Inc()
}

func IncEventsMalformed() {
	eventsMalformed.Inc()
}

func IncStreamReconnects() {
	streamReconnects.Inc()
}

func IncLandingsAwaited() {
	landingsAwaited.Inc()
}

func IncLandingTimeouts() {
	landingTimeouts.Inc()
}

func IncRPCCallFailure(method string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`mevshare_rpc_call_failures_total{method="%s"}`, method)).Inc()
}

func RecordRPCCallDuration(method string, duration int64) {
	metrics.GetOrCreateSummary(fmt.Sprintf(`mevshare_rpc_call_duration_milliseconds{method="%s"}`, method)).Update(float64(duration))
}
