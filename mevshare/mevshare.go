// Package mevshare implements a client for the MEV-Share protocol.
// The client talks to two independent surfaces:
//
// Bundle API (JSON-RPC over HTTPS):
//   - every request body is signed and sent with the X-Flashbots-Signature header
//   - mev_sendBundle, mev_simBundle, eth_sendPrivateTransaction
//
// Event API (SSE push stream + history REST):
//   - the client subscribes to the stream, classifies every frame as a
//     transaction or bundle event and fans it out to registered listeners
//   - GET /api/v1/history and /api/v1/history/info for past hints
//
// Bundles with hash-only body entries ("unmatched" bundles) are rejected by
// mev_simBundle because simulating them would reveal what the sender chose to
// hide. SimulateBundle therefore waits for the referenced transactions to land
// on chain and rewrites the body with the revealed transactions before
// simulating.
package mevshare

const (
	SendBundleEndpointName    = "mev_sendBundle"
	SimBundleEndpointName     = "mev_simBundle"
	SendPrivateTxEndpointName = "eth_sendPrivateTransaction"

	// SignatureHeader carries the request signature on every Bundle API call.
	SignatureHeader = "X-Flashbots-Signature"

	// BundleVersion is the bundle schema version this client speaks.
	BundleVersion = "v0.1"
)
