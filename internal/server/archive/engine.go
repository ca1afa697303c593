// Package archive implements the durable archival queue engine: an
// at-least-once, rate-limited store-and-forward pipeline from the upload
// path to the external archival ledger.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/streamvault/internal/common"
	"github.com/dmitrijs2005/streamvault/internal/dbx"
	"github.com/dmitrijs2005/streamvault/internal/logging"
	sc "github.com/dmitrijs2005/streamvault/internal/server/config"
	"github.com/dmitrijs2005/streamvault/internal/server/ledger"
	"github.com/dmitrijs2005/streamvault/internal/server/models"
	"github.com/dmitrijs2005/streamvault/internal/server/repositories/queueitems"
	"github.com/dmitrijs2005/streamvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/streamvault/internal/server/signing"
)

// IdentityManager is the engine's view of the signing key manager.
// Satisfied by *signing.Manager.
type IdentityManager interface {
	ActiveIdentity(ctx context.Context) (*signing.Identity, error)
	RecordSpend(ref string, amountEstimate int64)
	Rotate()
	Snapshot() []models.IdentityStatus
}

// EnqueueRequest is one chunk handed over for archival by the upload path.
type EnqueueRequest struct {
	Payload        []byte
	StreamID       string
	ChunkIndex     int64
	TimestampMs    int64
	UserID         string
	ContentAddress string
}

// TransactionRef is one archived chunk in a stream status report.
type TransactionRef struct {
	ChunkIndex    int64
	TransactionID string
	ArchivedAt    time.Time
}

// StreamStatus reports a stream's archival progress. Transactions are
// ordered by chunk index even when retries archived them out of order.
type StreamStatus struct {
	StreamID      string
	ArchivedCount int
	Transactions  []TransactionRef
}

// QueueStats is an operator-facing summary of the queue.
type QueueStats struct {
	PendingCount  int64
	PendingSize   int64
	FailedCount   int64
	ArchivedCount int64
	ArchivedSize  int64
	IsProcessing  bool
}

// Engine drains the persisted backlog through the signing manager and
// ledger client, one submission at a time. Enqueue may be called from any
// goroutine; all item state transitions happen on the single drain
// goroutine started by Run.
type Engine struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	ledger ledger.Client
	signer IdentityManager
	config *sc.Config
	logger logging.Logger

	limiter    *rate.Limiter
	wake       chan struct{}
	processing atomic.Bool
	now        func() time.Time
}

func NewEngine(db *sql.DB, repos repomanager.RepositoryManager, lc ledger.Client, im IdentityManager, config *sc.Config, logger logging.Logger) *Engine {
	return &Engine{
		db:      db,
		repos:   repos,
		ledger:  lc,
		signer:  im,
		config:  config,
		logger:  logger.With("component", "archive"),
		limiter: rate.NewLimiter(rate.Every(config.SubmitInterval), 1),
		wake:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Enqueue validates the request, persists a pending queue item and wakes
// the drain loop. Re-enqueueing the same (stream, chunk) pair while the
// first item is anywhere short of failed is a no-op, not a duplicate.
func (e *Engine) Enqueue(ctx context.Context, req *EnqueueRequest) error {
	if err := e.validate(req); err != nil {
		return err
	}

	item := &models.QueueItem{
		ID:      models.QueueItemID(req.StreamID, req.ChunkIndex),
		Payload: req.Payload,
		Metadata: models.ChunkMetadata{
			StreamID:       req.StreamID,
			ChunkIndex:     req.ChunkIndex,
			TimestampMs:    req.TimestampMs,
			UserID:         req.UserID,
			ContentAddress: req.ContentAddress,
			PayloadSize:    int64(len(req.Payload)),
		},
		State:    models.QueueStatePending,
		QueuedAt: e.now(),
	}

	inserted, err := e.repos.QueueItems(e.db).Enqueue(ctx, item)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	if !inserted {
		e.logger.Debug(ctx, "duplicate enqueue ignored", "id", item.ID)
		return nil
	}

	queueDepth.Inc()
	e.logger.Info(ctx, "chunk queued for archival", "id", item.ID, "size", item.Metadata.PayloadSize)
	e.signalWake()
	return nil
}

func (e *Engine) validate(req *EnqueueRequest) error {
	if req.StreamID == "" || req.UserID == "" {
		return fmt.Errorf("%w: stream and user are required", common.ErrValidation)
	}
	if req.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index", common.ErrValidation)
	}
	if len(req.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", common.ErrValidation)
	}
	if int64(len(req.Payload)) > e.config.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", common.ErrPayloadTooLarge, len(req.Payload), e.config.MaxPayloadSize)
	}
	if req.ContentAddress == "" {
		return fmt.Errorf("%w: missing content address", common.ErrValidation)
	}
	return nil
}

func (e *Engine) signalWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run recovers interrupted items and drains the backlog until ctx is
// cancelled. There is exactly one Run per Engine; it is the only writer of
// item state transitions.
func (e *Engine) Run(ctx context.Context) error {
	recovered, err := e.repos.QueueItems(e.db).ResetInFlight(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	if recovered > 0 {
		e.logger.Info(ctx, "recovered interrupted items", "count", recovered)
	}

	ticker := time.NewTicker(e.config.IdleWakeInterval)
	defer ticker.Stop()

	for {
		worked, err := e.drainOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error(ctx, "drain cycle failed", "error", err)
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

// drainOnce processes at most one item. It reports worked=false when the
// backlog has nothing due, which tells Run to idle.
func (e *Engine) drainOnce(ctx context.Context) (bool, error) {
	repo := e.repos.QueueItems(e.db)

	item, err := repo.NextPending(ctx, e.now())
	if errors.Is(err, common.ErrNotFound) {
		e.updateQueueDepth(ctx)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.processing.Store(true)
	defer e.processing.Store(false)

	if err := repo.MarkInFlight(ctx, item.ID); err != nil {
		return false, err
	}

	// Inter-submission floor: the external network rate-limits us, so this
	// applies regardless of the previous cycle's outcome.
	if err := e.limiter.Wait(ctx); err != nil {
		return false, err
	}

	e.submitOne(ctx, repo, item)
	e.updateQueueDepth(ctx)
	return true, nil
}

// submitOne runs one submission cycle for an in-flight item and records
// the resulting state transition. Failures never propagate: the caller
// already got its "accepted" at enqueue time, so outcomes live in item
// state, not in returned errors.
func (e *Engine) submitOne(ctx context.Context, repo queueitems.Repository, item *models.QueueItem) {
	start := e.now()

	identity, err := e.signer.ActiveIdentity(ctx)
	if err != nil {
		e.recordOutcome(ctx, repo, item, "", err, start)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.LedgerTimeout)
	defer cancel()

	txID, err := e.ledger.Submit(callCtx, item.Payload, e.tagsFor(item), identity)
	if err == nil {
		e.signer.RecordSpend(identity.Ref(), 0)
	}
	e.recordOutcome(ctx, repo, item, txID, err, start)
}

func (e *Engine) tagsFor(item *models.QueueItem) []ledger.Tag {
	m := item.Metadata
	return []ledger.Tag{
		{Name: "App-Name", Value: "StreamVault"},
		{Name: "Stream-Id", Value: m.StreamID},
		{Name: "Chunk-Index", Value: strconv.FormatInt(m.ChunkIndex, 10)},
		{Name: "User-Id", Value: m.UserID},
		{Name: "Timestamp", Value: strconv.FormatInt(m.TimestampMs, 10)},
		{Name: "Content-Address", Value: m.ContentAddress},
	}
}

func (e *Engine) recordOutcome(ctx context.Context, repo queueitems.Repository, item *models.QueueItem, txID string, submitErr error, start time.Time) {
	attempts := item.Attempts + 1
	elapsed := e.now().Sub(start).Seconds()

	switch {
	case submitErr == nil:
		if err := e.persistSuccess(ctx, item, txID, attempts); err != nil {
			// The network accepted the transaction but the record write
			// failed; the item stays in_flight and startup recovery will
			// resubmit it. At-least-once, by contract.
			e.logger.Error(ctx, "archived record write failed", "id", item.ID, "tx", txID, "error", err)
			return
		}
		submissionsTotal.WithLabelValues("ok").Inc()
		submissionDuration.WithLabelValues("ok").Observe(elapsed)
		e.logger.Info(ctx, "chunk archived", "id", item.ID, "tx", txID, "attempts", attempts)

	case errors.Is(submitErr, common.ErrSubmissionRejected),
		errors.Is(submitErr, common.ErrNoIdentityConfigured):
		// Permanent: resubmitting the same payload cannot succeed, and a
		// server with zero identities must fail fast, not spin.
		if err := repo.MarkFailed(ctx, item.ID, attempts); err != nil {
			e.logger.Error(ctx, "failed-state write failed", "id", item.ID, "error", err)
			return
		}
		submissionsTotal.WithLabelValues("rejected").Inc()
		submissionDuration.WithLabelValues("rejected").Observe(elapsed)
		e.logger.Error(ctx, "submission rejected permanently", "id", item.ID, "attempts", attempts, "error", submitErr)

	default:
		// Transient: network trouble or no currently funded identity.
		e.signer.Rotate()
		if attempts >= e.config.MaxAttempts {
			if err := repo.MarkFailed(ctx, item.ID, attempts); err != nil {
				e.logger.Error(ctx, "failed-state write failed", "id", item.ID, "error", err)
				return
			}
			submissionsTotal.WithLabelValues("exhausted").Inc()
			submissionDuration.WithLabelValues("exhausted").Observe(elapsed)
			e.logger.Error(ctx, "retries exhausted", "id", item.ID, "attempts", attempts, "error", submitErr)
			return
		}

		delay := e.backoff(attempts)
		if err := repo.ScheduleRetry(ctx, item.ID, attempts, e.now().Add(delay)); err != nil {
			e.logger.Error(ctx, "retry scheduling failed", "id", item.ID, "error", err)
			return
		}
		submissionsTotal.WithLabelValues("retry").Inc()
		submissionDuration.WithLabelValues("retry").Observe(elapsed)
		e.logger.Warn(ctx, "submission failed, retry scheduled",
			"id", item.ID, "attempts", attempts, "delay", delay, "error", submitErr)
	}
}

// persistSuccess writes the archived record and the terminal item state in
// one transaction, so an item is never archived without its record.
func (e *Engine) persistSuccess(ctx context.Context, item *models.QueueItem, txID string, attempts int) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec := &models.ArchivedRecord{
			ItemID:         item.ID,
			StreamID:       item.Metadata.StreamID,
			ChunkIndex:     item.Metadata.ChunkIndex,
			UserID:         item.Metadata.UserID,
			ContentAddress: item.Metadata.ContentAddress,
			PayloadSize:    item.Metadata.PayloadSize,
			TransactionID:  txID,
			ArchivedAt:     e.now(),
		}
		if err := e.repos.Archived(tx).Create(ctx, rec); err != nil {
			return err
		}
		return e.repos.QueueItems(tx).MarkArchived(ctx, item.ID, txID, attempts)
	})
}

// backoff returns the delay before the next attempt: base doubled per
// attempt already made (base, 2*base, 4*base, ...).
func (e *Engine) backoff(attempts int) time.Duration {
	return e.config.RetryBackoffBase << (attempts - 1)
}

func (e *Engine) updateQueueDepth(ctx context.Context) {
	stats, err := e.repos.QueueItems(e.db).Stats(ctx)
	if err != nil {
		return
	}
	queueDepth.Set(float64(stats.PendingCount))
}

// GetStreamStatus reports how much of a stream is archived and the
// transaction IDs of its chunks in chunk order.
func (e *Engine) GetStreamStatus(ctx context.Context, streamID string) (*StreamStatus, error) {
	if streamID == "" {
		return nil, fmt.Errorf("%w: stream is required", common.ErrValidation)
	}

	records, err := e.repos.Archived(e.db).ListByStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("stream status failed: %w", err)
	}

	status := &StreamStatus{StreamID: streamID, ArchivedCount: len(records)}
	for _, rec := range records {
		status.Transactions = append(status.Transactions, TransactionRef{
			ChunkIndex:    rec.ChunkIndex,
			TransactionID: rec.TransactionID,
			ArchivedAt:    rec.ArchivedAt,
		})
	}
	return status, nil
}

// GetQueueStats aggregates backlog and archive counters.
func (e *Engine) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	backlog, err := e.repos.QueueItems(e.db).Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats failed: %w", err)
	}
	arch, err := e.repos.Archived(e.db).Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats failed: %w", err)
	}
	return &QueueStats{
		PendingCount:  backlog.PendingCount,
		PendingSize:   backlog.PendingSize,
		FailedCount:   backlog.FailedCount,
		ArchivedCount: arch.ArchivedCount,
		ArchivedSize:  arch.ArchivedSize,
		IsProcessing:  e.processing.Load(),
	}, nil
}

// EstimateCost asks the network for the submission price of a payload of
// the given size. Operator tooling; the drain loop does not price-check.
func (e *Engine) EstimateCost(ctx context.Context, sizeBytes int64) (int64, error) {
	if sizeBytes <= 0 || sizeBytes > e.config.MaxPayloadSize {
		return 0, fmt.Errorf("%w: size %d out of range", common.ErrValidation, sizeBytes)
	}
	return e.ledger.EstimateCost(ctx, sizeBytes)
}
