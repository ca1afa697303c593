package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/streamvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &testSigner{pub: pub, priv: priv}
}

func (s *testSigner) Address() string { return base64.RawURLEncoding.EncodeToString(s.pub) }

func (s *testSigner) Sign(digest []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, digest), nil
}

func newClient(url string) *HTTPClient {
	return NewHTTPClient(url, 2*time.Second)
}

func TestSubmit_Success(t *testing.T) {
	signer := newTestSigner(t)

	var received transaction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tx", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	txID, err := newClient(srv.URL).Submit(context.Background(),
		[]byte("chunk"), []Tag{{Name: "Stream-Id", Value: "s1"}}, signer)
	require.NoError(t, err)
	assert.Equal(t, received.ID, txID)
	assert.Equal(t, signer.Address(), received.Owner)
	assert.Equal(t, int64(5), received.DataSize)

	// signature verifies against the deterministic digest
	sig, err := base64.StdEncoding.DecodeString(received.Signature)
	require.NoError(t, err)
	digest := submissionDigest(signer.Address(), received.Tags, []byte("chunk"))
	assert.True(t, ed25519.Verify(signer.pub, digest, sig))
}

func TestSubmit_RejectedOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "malformed transaction", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Submit(context.Background(), []byte("x"), nil, newTestSigner(t))
	assert.ErrorIs(t, err, common.ErrSubmissionRejected)
}

func TestSubmit_TransientOn5xxAnd429(t *testing.T) {
	for _, code := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := newClient(srv.URL).Submit(context.Background(), []byte("x"), nil, newTestSigner(t))
		assert.ErrorIs(t, err, common.ErrNetworkUnavailable, "status %d", code)
		srv.Close()
	}
}

func TestSubmit_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	_, err := newClient(srv.URL).Submit(context.Background(), []byte("x"), nil, newTestSigner(t))
	assert.ErrorIs(t, err, common.ErrNetworkUnavailable)
}

func TestGetStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    TxStatus
	}{
		{
			name: "confirmed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(statusResponse{Status: "confirmed"})
			},
			want: StatusConfirmed,
		},
		{
			name: "pending",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(statusResponse{Status: "pending"})
			},
			want: StatusPending,
		},
		{
			name: "not found is propagation delay",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			status, err := newClient(srv.URL).GetStatus(context.Background(), "tx-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestEstimateCostAndBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/price/1024":
			w.Write([]byte("42000"))
		case "/wallet/addr-1/balance":
			w.Write([]byte("1000000\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL)

	price, err := c.EstimateCost(context.Background(), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(42000), price)

	balance, err := c.GetBalance(context.Background(), "addr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), balance)
}

func TestNetworkInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/info", r.URL.Path)
		json.NewEncoder(w).Encode(NetworkInfo{Network: "archive.mainnet", Height: 123456, Peers: 12})
	}))
	defer srv.Close()

	info, err := newClient(srv.URL).NetworkInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "archive.mainnet", info.Network)
	assert.Equal(t, int64(123456), info.Height)
	assert.Equal(t, 12, info.Peers)
}

func TestWaitForConfirmation_EventuallyConfirms(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(statusResponse{Status: "confirmed"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := newClient(srv.URL).WaitForConfirmation(ctx, "tx-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestWaitForConfirmation_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusResponse{Status: "pending"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := newClient(srv.URL).WaitForConfirmation(ctx, "tx-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
