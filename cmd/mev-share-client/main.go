// Command mev-share-client subscribes to the MEV-Share event stream and logs
// every hint it receives. It is the reference wiring of the client library.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/flashbots/go-utils/cli"
	"github.com/flashbots/mev-share-client/mevshare"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev" // is set during build process

	// Default values
	defaultDebug       = os.Getenv("DEBUG") == "1"
	defaultLogProd     = os.Getenv("LOG_PROD") == "1"
	defaultNetwork     = cli.GetEnv("NETWORK", "mainnet")
	defaultSigningKey  = cli.GetEnv("SIGNING_KEY", "")
	defaultAPIURL      = cli.GetEnv("API_URL", "")
	defaultStreamURL   = cli.GetEnv("STREAM_URL", "")
	defaultEthEndpoint = cli.GetEnv("ETH_ENDPOINT", "")
	defaultMetricsPort = cli.GetEnv("METRICS_PORT", "")

	// Flags
	debugPtr       = flag.Bool("debug", defaultDebug, "print debug output")
	logProdPtr     = flag.Bool("log-prod", defaultLogProd, "log in production mode (json)")
	networkPtr     = flag.String("network", defaultNetwork, "mev-share network name")
	networksPtr    = flag.String("networks-config", "", "optional networks config file (yaml)")
	signingKeyPtr  = flag.String("signing-key", defaultSigningKey, "hex private key for request signing")
	apiURLPtr      = flag.String("api", defaultAPIURL, "bundle api url (overrides network)")
	streamURLPtr   = flag.String("stream", defaultStreamURL, "event stream url (overrides network)")
	ethPtr         = flag.String("eth", defaultEthEndpoint, "eth json-rpc endpoint for landing checks")
	metricsPortPtr = flag.String("metrics-port", defaultMetricsPort, "serve prometheus metrics on this port")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	if *logProdPtr {
		atom := zap.NewAtomicLevel()
		if *debugPtr {
			atom.SetLevel(zap.DebugLevel)
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			atom,
		))
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting mev-share-client", zap.String("version", version))

	networks := mevshare.SupportedNetworks
	if *networksPtr != "" {
		var err error
		networks, err = mevshare.LoadNetworksConfig(*networksPtr)
		if err != nil {
			logger.Fatal("Failed to load networks config", zap.Error(err))
		}
	}
	network, ok := networks[*networkPtr]
	if !ok {
		logger.Fatal("Unknown network", zap.String("network", *networkPtr))
	}

	if *signingKeyPtr == "" {
		logger.Fatal("Signing key is required")
	}
	signer, err := mevshare.NewPrivateKeySigner(*signingKeyPtr)
	if err != nil {
		logger.Fatal("Failed to parse signing key", zap.Error(err))
	}

	client, err := mevshare.New(logger, mevshare.Config{
		Signer:        signer,
		Network:       network,
		APIURL:        *apiURLPtr,
		StreamURL:     *streamURLPtr,
		EthBackendURL: *ethPtr,
	})
	if err != nil {
		logger.Fatal("Failed to create client", zap.Error(err))
	}

	client.OnTransaction(func(event *mevshare.TransactionEvent) {
		logger.Info("Transaction hint",
			zap.String("hash", event.Hash.Hex()),
			zap.Int("logs", len(event.Logs)),
		)
	})
	client.OnBundle(func(event *mevshare.BundleEvent) {
		logger.Info("Bundle hint",
			zap.String("hash", event.Hash.Hex()),
			zap.Int("txs", len(event.Txs)),
		)
	})
	go func() {
		for err := range client.StreamErrors() {
			logger.Warn("Stream error", zap.Error(err))
		}
	}()

	if *metricsPortPtr != "" {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
				metrics.WritePrometheus(w, true)
			})
			metricsServer := &http.Server{
				Addr:              fmt.Sprintf(":%s", *metricsPortPtr),
				ReadHeaderTimeout: 5 * time.Second,
				Handler:           metricsMux,
			}
			if err := metricsServer.ListenAndServe(); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	notifier := make(chan os.Signal, 1)
	signal.Notify(notifier, os.Interrupt, syscall.SIGTERM)
	<-notifier
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = client.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for client shutdown")
	}
}
