package usecases

import (
	"context"
	"time"

	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/pkg/logger"
)

// ReconcileConfig controls the sweep over executed records that no session
// is watching, e.g. after a restart or a cancelled stream.
type ReconcileConfig struct {
	StaleAfter   time.Duration
	AbandonAfter time.Duration
	BatchSize    int
}

// ReconcileResult summarises one sweep.
type ReconcileResult struct {
	Checked   int
	Settled   int
	Abandoned int
	Errors    int
}

// ReconcileStale runs one status check for every executed, unsettled record
// untouched for cfg.StaleAfter that has no live session. A record still unsettled
// cfg.AbandonAfter after creation is marked failed as timed out.
func (u *PaymentUsecase) ReconcileStale(ctx context.Context, creds entities.ProviderCredentials, cfg ReconcileConfig) (ReconcileResult, error) {
	var result ReconcileResult
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	now := u.clock.Now()
	records, err := u.repo.ListStale(ctx, now.Add(-cfg.StaleAfter), cfg.BatchSize)
	if err != nil {
		return result, err
	}

	for _, record := range records {
		if _, live := u.sessions.Get(record.ID); live {
			continue
		}
		rctx := logger.WithPayment(ctx, record.ID)

		updated, err := u.monitor.CheckOnce(rctx, creds, record)
		if err != nil {
			result.Errors++
			logger.Warn(rctx, "Reconcile status check failed", zap.Error(err))
			continue
		}
		result.Checked++

		if updated.Status.IsTerminal() {
			result.Settled++
			u.store(rctx, recordEvent(updated))
			continue
		}
		if cfg.AbandonAfter > 0 && now.Sub(updated.CreatedAt) >= cfg.AbandonAfter {
			result.Abandoned++
			ev := u.fail(rctx, updated.ID, domainerrors.ErrMonitorTimeout.Error())
			ev.TimedOut = true
			u.store(rctx, ev)
		}
	}

	if result.Checked > 0 || result.Errors > 0 {
		logger.Info(ctx, "Reconciled stale payments",
			zap.Int("checked", result.Checked),
			zap.Int("settled", result.Settled),
			zap.Int("abandoned", result.Abandoned),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

// store saves ev as the latest event of a record that has no session.
func (u *PaymentUsecase) store(ctx context.Context, ev entities.PaymentEvent) {
	if u.events == nil {
		return
	}
	ev.Timestamp = u.clock.Now()
	if err := u.events.Save(ctx, ev.PaymentID.String(), ev); err != nil {
		logger.Warn(ctx, "Failed to store payment event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
