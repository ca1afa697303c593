package archive

import (
	"context"

	"github.com/dmitrijs2005/streamvault/internal/server/ledger"
	"github.com/dmitrijs2005/streamvault/internal/server/models"
)

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// Health is the engine's best-effort self-report. Partial failures degrade
// the overall status and fill the corresponding error field instead of
// failing the check.
type Health struct {
	Status string `json:"status"`

	Network      *ledger.NetworkInfo `json:"network,omitempty"`
	NetworkError string              `json:"network_error,omitempty"`

	Identities []models.IdentityStatus `json:"identities"`

	Queue      *QueueStats `json:"queue,omitempty"`
	QueueError string      `json:"queue_error,omitempty"`
}

// HealthCheck aggregates ledger reachability, signing identity funding and
// queue depth. It never returns an error: a subsystem that cannot be
// queried is reported as degraded.
func (e *Engine) HealthCheck(ctx context.Context) *Health {
	h := &Health{Status: HealthHealthy}

	info, err := e.ledger.NetworkInfo(ctx)
	if err != nil {
		h.Status = HealthDegraded
		h.NetworkError = err.Error()
	} else {
		h.Network = info
	}

	h.Identities = e.signer.Snapshot()
	funded := false
	for _, id := range h.Identities {
		if id.State == models.FundingStateFunded || id.State == models.FundingStateLowBalance {
			funded = true
			break
		}
	}
	if !funded {
		h.Status = HealthDegraded
	}

	stats, err := e.GetQueueStats(ctx)
	if err != nil {
		h.Status = HealthDegraded
		h.QueueError = err.Error()
	} else {
		h.Queue = stats
	}

	return h
}
