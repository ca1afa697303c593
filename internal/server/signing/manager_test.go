package signing

import (
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/streamvault/internal/common"
	"github.com/dmitrijs2005/streamvault/internal/logging"
	"github.com/dmitrijs2005/streamvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBalanceSource struct {
	balances map[string]int64
	err      error
	calls    int
}

func (f *fakeBalanceSource) GetBalance(ctx context.Context, address string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.balances[address], nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func genIdentity(t *testing.T, ref string) *Identity {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id, err := newIdentity(ref, priv.Seed())
	require.NoError(t, err)
	return id
}

func defaultThresholds() Thresholds {
	return Thresholds{MinBalance: 100, LowWatermark: 1000, SpendEstimate: 50}
}

func TestActiveIdentity_NoIdentitiesConfigured(t *testing.T) {
	m := NewManager(nil, &fakeBalanceSource{}, defaultThresholds(), testLogger())

	_, err := m.ActiveIdentity(context.Background())
	assert.ErrorIs(t, err, common.ErrNoIdentityConfigured)
}

func TestActiveIdentity_RefreshesWhenCacheCold(t *testing.T) {
	id := genIdentity(t, "a")
	source := &fakeBalanceSource{balances: map[string]int64{id.Address(): 5000}}
	m := NewManager([]*Identity{id}, source, defaultThresholds(), testLogger())

	// cached balance starts at 0, so the first call must refresh
	got, err := m.ActiveIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got.Ref())
	assert.Equal(t, 1, source.calls)
}

func TestActiveIdentity_NoFundedIdentity(t *testing.T) {
	id := genIdentity(t, "a")
	source := &fakeBalanceSource{balances: map[string]int64{id.Address(): 10}} // below min
	m := NewManager([]*Identity{id}, source, defaultThresholds(), testLogger())

	_, err := m.ActiveIdentity(context.Background())
	assert.ErrorIs(t, err, common.ErrNoFundedIdentity)
}

func TestActiveIdentity_SkipsDrainedIdentity(t *testing.T) {
	a, b := genIdentity(t, "a"), genIdentity(t, "b")
	source := &fakeBalanceSource{balances: map[string]int64{
		a.Address(): 10,   // unfunded
		b.Address(): 5000, // funded
	}}
	m := NewManager([]*Identity{a, b}, source, defaultThresholds(), testLogger())

	got, err := m.ActiveIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", got.Ref())
}

func TestRecordSpend_DrainsCachedBalance(t *testing.T) {
	id := genIdentity(t, "a")
	source := &fakeBalanceSource{balances: map[string]int64{id.Address(): 120}}
	m := NewManager([]*Identity{id}, source, defaultThresholds(), testLogger())

	_, err := m.ActiveIdentity(context.Background())
	require.NoError(t, err)

	// spend past the minimum; subsequent pick must refresh and then fail
	m.RecordSpend("a", 80)
	source.balances[id.Address()] = 40 // the real balance is low too

	_, err = m.ActiveIdentity(context.Background())
	assert.ErrorIs(t, err, common.ErrNoFundedIdentity)
}

func TestRecordSpend_FallsBackToEstimate(t *testing.T) {
	id := genIdentity(t, "a")
	source := &fakeBalanceSource{balances: map[string]int64{id.Address(): 500}}
	m := NewManager([]*Identity{id}, source, defaultThresholds(), testLogger())
	m.RefreshBalances(context.Background())

	m.RecordSpend("a", 0) // uses SpendEstimate=50

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(450), snap[0].CachedBalance)
}

func TestRotate_RoundRobin(t *testing.T) {
	a, b := genIdentity(t, "a"), genIdentity(t, "b")
	source := &fakeBalanceSource{balances: map[string]int64{
		a.Address(): 5000,
		b.Address(): 5000,
	}}
	m := NewManager([]*Identity{a, b}, source, defaultThresholds(), testLogger())
	m.RefreshBalances(context.Background())

	got, err := m.ActiveIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got.Ref())

	m.Rotate()

	got, err = m.ActiveIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", got.Ref())
}

func TestRefreshBalances_PartialFailure(t *testing.T) {
	id := genIdentity(t, "a")
	source := &fakeBalanceSource{err: errors.New("gateway down")}
	m := NewManager([]*Identity{id}, source, defaultThresholds(), testLogger())

	// must not panic or fail; cache simply stays stale
	m.RefreshBalances(context.Background())

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].LastBalanceCheck.IsZero())
}

func TestSnapshot_FundingStates(t *testing.T) {
	a, b, c := genIdentity(t, "a"), genIdentity(t, "b"), genIdentity(t, "c")
	source := &fakeBalanceSource{balances: map[string]int64{
		a.Address(): 5000, // funded
		b.Address(): 500,  // low
		c.Address(): 10,   // unfunded
	}}
	m := NewManager([]*Identity{a, b, c}, source, defaultThresholds(), testLogger())
	m.RefreshBalances(context.Background())

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, models.FundingStateFunded, snap[0].State)
	assert.Equal(t, models.FundingStateLowBalance, snap[1].State)
	assert.Equal(t, models.FundingStateUnfunded, snap[2].State)
}

func TestLoadIdentities_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	generated, err := GenerateIdentity(dir)
	require.NoError(t, err)

	loaded, err := LoadIdentities(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, generated.Ref(), loaded[0].Ref())
	assert.Equal(t, generated.Address(), loaded[0].Address())

	// signatures from the loaded key verify against the generated address
	sig, err := loaded[0].Sign([]byte("digest"))
	require.NoError(t, err)
	assert.Len(t, sig, ed25519.SignatureSize)
}

func TestLoadIdentities_MissingDir(t *testing.T) {
	ids, err := LoadIdentities(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLoadIdentities_BadSeed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.seed"), []byte("short"), 0o600))

	_, err := LoadIdentities(dir)
	assert.Error(t, err)
}
