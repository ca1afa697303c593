package signing

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/streamvault/internal/common"
	"github.com/dmitrijs2005/streamvault/internal/logging"
	"github.com/dmitrijs2005/streamvault/internal/server/models"
)

// BalanceSource queries an identity's spendable balance on the archival
// network. Implemented by the ledger client; declared here so the manager
// does not depend on the ledger package.
type BalanceSource interface {
	GetBalance(ctx context.Context, address string) (int64, error)
}

// Thresholds configures the manager's funding policy, in the network's
// base currency units.
type Thresholds struct {
	// MinBalance is the floor below which an identity is not usable.
	MinBalance int64
	// LowWatermark flags an identity as low before it becomes unusable.
	LowWatermark int64
	// SpendEstimate is the fallback per-submission cost used by RecordSpend
	// callers that have no better estimate.
	SpendEstimate int64
}

type managedIdentity struct {
	identity         *Identity
	cachedBalance    int64
	lastBalanceCheck time.Time
}

// Manager owns the identity collection. The queue engine only ever asks it
// for "a usable identity" and reports spends and failures back; it never
// touches key material.
//
// Cached balances are advisory: RecordSpend decrements them optimistically
// so rapid consecutive submissions don't all pick an identity that is
// actually drained, and RefreshBalances reconciles against the network.
type Manager struct {
	source     BalanceSource
	thresholds Thresholds
	logger     logging.Logger
	now        func() time.Time

	mu         sync.Mutex
	identities []*managedIdentity
	current    int
}

func NewManager(identities []*Identity, source BalanceSource, thresholds Thresholds, logger logging.Logger) *Manager {
	m := &Manager{
		source:     source,
		thresholds: thresholds,
		logger:     logger.With("component", "signing"),
		now:        time.Now,
	}
	for _, id := range identities {
		m.identities = append(m.identities, &managedIdentity{identity: id})
	}
	return m
}

// ActiveIdentity returns the first identity (in round-robin order from the
// current position) whose cached balance clears the minimum. If none
// qualifies it refreshes all balances once before failing with
// common.ErrNoFundedIdentity.
func (m *Manager) ActiveIdentity(ctx context.Context) (*Identity, error) {
	m.mu.Lock()
	if len(m.identities) == 0 {
		m.mu.Unlock()
		return nil, common.ErrNoIdentityConfigured
	}
	if id := m.pickLocked(); id != nil {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	// Cache may be stale; a funding top-up happens out of band.
	m.RefreshBalances(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if id := m.pickLocked(); id != nil {
		return id, nil
	}
	return nil, common.ErrNoFundedIdentity
}

func (m *Manager) pickLocked() *Identity {
	n := len(m.identities)
	for i := 0; i < n; i++ {
		mi := m.identities[(m.current+i)%n]
		if mi.cachedBalance >= m.thresholds.MinBalance {
			m.current = (m.current + i) % n
			return mi.identity
		}
	}
	return nil
}

// RecordSpend optimistically decrements the cached balance after a
// submission. amountEstimate <= 0 falls back to the configured estimate.
func (m *Manager) RecordSpend(ref string, amountEstimate int64) {
	if amountEstimate <= 0 {
		amountEstimate = m.thresholds.SpendEstimate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mi := range m.identities {
		if mi.identity.Ref() == ref {
			mi.cachedBalance -= amountEstimate
			if mi.cachedBalance < 0 {
				mi.cachedBalance = 0
			}
			return
		}
	}
}

// Rotate advances to the next identity in round-robin order. The engine
// calls it after repeated failures from the current identity.
func (m *Manager) Rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.identities) == 0 {
		return
	}
	m.current = (m.current + 1) % len(m.identities)
}

// RefreshBalances queries the network balance of every identity. Individual
// failures are logged and skipped; a partial refresh is better than none.
func (m *Manager) RefreshBalances(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]*managedIdentity, len(m.identities))
	copy(snapshot, m.identities)
	m.mu.Unlock()

	for _, mi := range snapshot {
		balance, err := m.source.GetBalance(ctx, mi.identity.Address())
		if err != nil {
			m.logger.Warn(ctx, "balance refresh failed", "ref", mi.identity.Ref(), "error", err)
			continue
		}
		m.mu.Lock()
		mi.cachedBalance = balance
		mi.lastBalanceCheck = m.now()
		m.mu.Unlock()
	}
}

// Snapshot returns a read-only view of every identity for health checks.
func (m *Manager) Snapshot() []models.IdentityStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.IdentityStatus, 0, len(m.identities))
	for _, mi := range m.identities {
		out = append(out, models.IdentityStatus{
			Ref:              mi.identity.Ref(),
			Address:          mi.identity.Address(),
			CachedBalance:    mi.cachedBalance,
			LastBalanceCheck: mi.lastBalanceCheck,
			State:            m.fundingStateLocked(mi.cachedBalance),
		})
	}
	return out
}

func (m *Manager) fundingStateLocked(balance int64) models.FundingState {
	switch {
	case balance < m.thresholds.MinBalance:
		return models.FundingStateUnfunded
	case balance < m.thresholds.LowWatermark:
		return models.FundingStateLowBalance
	default:
		return models.FundingStateFunded
	}
}
