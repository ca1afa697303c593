package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/streamvault/internal/common"
)

// transaction is the gateway's wire envelope for a submission.
type transaction struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Tags      []Tag  `json:"tags"`
	Data      string `json:"data"` // base64
	DataSize  int64  `json:"data_size"`
	Signature string `json:"signature"` // base64
}

type statusResponse struct {
	Status string `json:"status"`
}

// HTTPClient talks to the archival gateway over its JSON HTTP API:
//
//	GET  /price/{size}
//	POST /tx
//	GET  /tx/{id}/status
//	GET  /wallet/{address}/balance
//	GET  /info
//
// Every call is bounded by the configured timeout; a hung gateway surfaces
// as common.ErrNetworkUnavailable rather than blocking the caller.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) EstimateCost(ctx context.Context, sizeBytes int64) (int64, error) {
	body, err := c.get(ctx, fmt.Sprintf("/price/%d", sizeBytes))
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price response: %w", err)
	}
	return price, nil
}

// Submit builds, signs and posts a transaction carrying data and tags.
// The digest covers owner, tags and data; the transaction ID is derived
// from the signature, so identical payloads signed at different times get
// distinct IDs.
func (c *HTTPClient) Submit(ctx context.Context, data []byte, tags []Tag, signer Signer) (string, error) {
	digest := submissionDigest(signer.Address(), tags, data)

	sig, err := signer.Sign(digest)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}

	idSum := sha256.Sum256(sig)
	tx := transaction{
		ID:        hex.EncodeToString(idSum[:]),
		Owner:     signer.Address(),
		Tags:      tags,
		Data:      base64.StdEncoding.EncodeToString(data),
		DataSize:  int64(len(data)),
		Signature: base64.StdEncoding.EncodeToString(sig),
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, transactionID string) (TxStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tx/"+transactionID+"/status", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	// 404 right after submission is propagation delay, not an error.
	if resp.StatusCode == http.StatusNotFound {
		return StatusNotFound, nil
	}
	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("invalid status response: %w", err)
	}
	switch sr.Status {
	case "confirmed":
		return StatusConfirmed, nil
	default:
		return StatusPending, nil
	}
}

func (c *HTTPClient) GetBalance(ctx context.Context, address string) (int64, error) {
	body, err := c.get(ctx, "/wallet/"+address+"/balance")
	if err != nil {
		return 0, err
	}
	balance, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid balance response: %w", err)
	}
	return balance, nil
}

func (c *HTTPClient) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	body, err := c.get(ctx, "/info")
	if err != nil {
		return nil, err
	}
	var info NetworkInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("invalid info response: %w", err)
	}
	return &info, nil
}

// WaitForConfirmation polls transaction status with exponential backoff
// until the network confirms it or ctx expires. Operator/tooling helper;
// the drain loop does not wait for confirmations.
func (c *HTTPClient) WaitForConfirmation(ctx context.Context, transactionID string) error {
	backoff := retry.WithMaxDuration(10*time.Minute, retry.NewExponential(2*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, err := c.GetStatus(ctx, transactionID)
		if err != nil {
			return retry.RetryableError(err)
		}
		if status != StatusConfirmed {
			return retry.RetryableError(fmt.Errorf("transaction %s is %s", transactionID, status))
		}
		return nil
	})
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// classifyStatus maps HTTP responses onto the submission error taxonomy:
// 429 and 5xx are transient, other 4xx are rejections that retrying the
// same payload will not fix.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", common.ErrNetworkUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: gateway returned %d: %s", common.ErrSubmissionRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// submissionDigest deterministically serializes the signed parts of a
// transaction: owner, tags (in order), then data.
func submissionDigest(owner string, tags []Tag, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(owner))
	for _, t := range tags {
		h.Write([]byte(t.Name))
		h.Write([]byte{0})
		h.Write([]byte(t.Value))
		h.Write([]byte{0})
	}
	h.Write(data)
	return h.Sum(nil)
}
