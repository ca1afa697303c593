// Package ledger implements the client for the external archival network
// gateway: transaction submission, status and balance queries, and price
// estimation.
package ledger

import "context"

// Tag is a key/value pair attached to a transaction for external
// discoverability of the archived chunk.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TxStatus is the confirmation state of a submitted transaction.
// StatusNotFound immediately after submission is normal propagation delay,
// not a permanent failure.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusNotFound  TxStatus = "not_found"
)

// NetworkInfo is the gateway's self-description, used by health checks.
type NetworkInfo struct {
	Network string `json:"network"`
	Height  int64  `json:"height"`
	Peers   int    `json:"peers"`
}

// Signer authorizes a submission. Implemented by the signing manager's
// identities; key material stays on that side of the interface.
type Signer interface {
	// Address is the network-visible account the transaction spends from.
	Address() string

	// Sign signs the transaction digest.
	Sign(digest []byte) ([]byte, error)
}

// Client is the protocol-level contract with the archival network.
//
// Submit fails with common.ErrSubmissionRejected for network-level
// rejections (not retryable as-is) and common.ErrNetworkUnavailable for
// transient transport conditions.
type Client interface {
	EstimateCost(ctx context.Context, sizeBytes int64) (int64, error)
	Submit(ctx context.Context, data []byte, tags []Tag, signer Signer) (string, error)
	GetStatus(ctx context.Context, transactionID string) (TxStatus, error)
	GetBalance(ctx context.Context, address string) (int64, error)
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)
}
