package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/domain/gateways"
	"stablepay.backend/internal/domain/repositories"
	"stablepay.backend/pkg/clock"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
)

const onChainFailureReason = "transaction failed on chain"

// MapProviderStatus maps the provider's transaction vocabulary onto the
// record status. Unknown values are non-terminal.
func MapProviderStatus(status string) entities.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "mined", "confirmed":
		return entities.PaymentStatusConfirmed
	case "failed":
		return entities.PaymentStatusFailed
	default:
		return entities.PaymentStatusMonitoring
	}
}

// MonitorConfig bounds a monitoring session
type MonitorConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// MonitoringSession is the in-memory state of one transaction being polled.
type MonitoringSession struct {
	RecordID      uuid.UUID
	TransactionID string
	Attempts      int
	MaxAttempts   int
	PollInterval  time.Duration

	monitoringPersisted bool
}

// Exhausted reports whether the poll budget is used up.
func (s *MonitoringSession) Exhausted() bool {
	return s.Attempts >= s.MaxAttempts
}

// TransactionMonitor polls the provider until a transaction settles
type TransactionMonitor struct {
	provider gateways.PaymentProvider
	repo     repositories.PaymentRecordRepository
	clock    clock.Clock
	cfg      MonitorConfig
}

// NewTransactionMonitor creates a new transaction monitor
func NewTransactionMonitor(provider gateways.PaymentProvider, repo repositories.PaymentRecordRepository, clk clock.Clock, cfg MonitorConfig) *TransactionMonitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	return &TransactionMonitor{provider: provider, repo: repo, clock: clk, cfg: cfg}
}

// Run polls transactionID until it confirms, fails or the poll budget runs
// out, emitting monitoring and terminal events. The first poll happens
// immediately. Poll errors use up budget like non-terminal answers. It
// returns ctx.Err() when cancelled, without a terminal event.
func (m *TransactionMonitor) Run(ctx context.Context, creds entities.ProviderCredentials, recordID uuid.UUID, transactionID string, emit func(entities.PaymentEvent)) error {
	session := &MonitoringSession{
		RecordID:      recordID,
		TransactionID: transactionID,
		MaxAttempts:   m.cfg.MaxAttempts,
		PollInterval:  m.cfg.PollInterval,
	}

	for !session.Exhausted() {
		if session.Attempts > 0 {
			timer := m.clock.NewTimer(session.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C():
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		session.Attempts++
		st, err := m.provider.GetTransactionStatus(ctx, creds, transactionID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.StatusPolls.WithLabelValues("error").Inc()
			logger.Warn(ctx, "Transaction status poll failed",
				zap.String("transaction_id", transactionID),
				zap.Int("attempt", session.Attempts),
				zap.Error(err),
			)
			continue
		}

		status := MapProviderStatus(st.Status)
		metrics.StatusPolls.WithLabelValues(string(status)).Inc()

		switch status {
		case entities.PaymentStatusConfirmed:
			emit(m.settle(ctx, recordID, entities.PaymentStatusUpdate{
				Status:          entities.PaymentStatusConfirmed,
				TransactionHash: null.NewString(st.TransactionHash, st.TransactionHash != ""),
			}, false))
			return nil
		case entities.PaymentStatusFailed:
			emit(m.settle(ctx, recordID, entities.PaymentStatusUpdate{
				Status:        entities.PaymentStatusFailed,
				FailureReason: null.StringFrom(onChainFailureReason),
			}, false))
			return nil
		}

		if !session.monitoringPersisted {
			session.monitoringPersisted = true
			ev := entities.PaymentEvent{Kind: entities.PaymentEventMonitoring, PaymentID: recordID}
			err := m.repo.UpdateStatus(ctx, recordID, entities.PaymentStatusUpdate{Status: entities.PaymentStatusMonitoring})
			if errors.Is(err, domainerrors.ErrTerminalStatus) {
				// Settled elsewhere, e.g. by a manual refresh.
				emit(m.eventFromRecord(ctx, recordID))
				return nil
			}
			if err != nil {
				ev.Degraded = true
				persistenceFailed(ctx, recordID, err)
			}
			emit(ev)
		}
	}

	logger.Warn(ctx, "Transaction monitoring timed out",
		zap.String("transaction_id", transactionID),
		zap.Int("attempts", session.Attempts),
	)
	emit(m.settle(ctx, recordID, entities.PaymentStatusUpdate{
		Status:        entities.PaymentStatusFailed,
		FailureReason: null.StringFrom(domainerrors.ErrMonitorTimeout.Error()),
	}, true))
	return nil
}

// settle writes a terminal status and builds the matching event.
func (m *TransactionMonitor) settle(ctx context.Context, recordID uuid.UUID, update entities.PaymentStatusUpdate, timedOut bool) entities.PaymentEvent {
	err := m.repo.UpdateStatus(ctx, recordID, update)
	if errors.Is(err, domainerrors.ErrTerminalStatus) {
		return m.eventFromRecord(ctx, recordID)
	}

	ev := entities.PaymentEvent{PaymentID: recordID, TimedOut: timedOut}
	if update.Status == entities.PaymentStatusConfirmed {
		ev.Kind = entities.PaymentEventConfirmed
		ev.TransactionHash = update.TransactionHash.String
		metrics.PaymentsFinished.WithLabelValues("confirmed").Inc()
	} else {
		ev.Kind = entities.PaymentEventFailed
		ev.Reason = update.FailureReason.String
		if timedOut {
			metrics.PaymentsFinished.WithLabelValues("timed_out").Inc()
		} else {
			metrics.PaymentsFinished.WithLabelValues("failed").Inc()
		}
	}
	if err != nil {
		ev.Degraded = true
		persistenceFailed(ctx, recordID, err)
	}
	return ev
}

func (m *TransactionMonitor) eventFromRecord(ctx context.Context, recordID uuid.UUID) entities.PaymentEvent {
	record, err := m.repo.GetByID(ctx, recordID)
	if err != nil {
		persistenceFailed(ctx, recordID, err)
		return entities.PaymentEvent{Kind: entities.PaymentEventFailed, PaymentID: recordID, Reason: err.Error(), Degraded: true}
	}
	return recordEvent(record)
}

// CheckOnce performs a single status check for record and applies the
// result. Terminal records are returned untouched.
func (m *TransactionMonitor) CheckOnce(ctx context.Context, creds entities.ProviderCredentials, record *entities.PaymentRecord) (*entities.PaymentRecord, error) {
	if record.Status.IsTerminal() {
		return record, nil
	}
	if !record.TransactionID.Valid {
		return nil, fmt.Errorf("%w: payment has not been executed", domainerrors.ErrConflict)
	}

	st, err := m.provider.GetTransactionStatus(ctx, creds, record.TransactionID.String)
	if err != nil {
		metrics.StatusPolls.WithLabelValues("error").Inc()
		return nil, err
	}
	status := MapProviderStatus(st.Status)
	metrics.StatusPolls.WithLabelValues(string(status)).Inc()

	update := entities.PaymentStatusUpdate{Status: status}
	switch status {
	case entities.PaymentStatusConfirmed:
		update.TransactionHash = null.NewString(st.TransactionHash, st.TransactionHash != "")
	case entities.PaymentStatusFailed:
		update.FailureReason = null.StringFrom(onChainFailureReason)
	default:
		if record.Status == entities.PaymentStatusMonitoring {
			return record, nil
		}
	}

	if err := m.repo.UpdateStatus(ctx, record.ID, update); err != nil && !errors.Is(err, domainerrors.ErrTerminalStatus) {
		return nil, err
	}
	return m.repo.GetByID(ctx, record.ID)
}

func recordEvent(record *entities.PaymentRecord) entities.PaymentEvent {
	ev := entities.PaymentEvent{PaymentID: record.ID}
	switch record.Status {
	case entities.PaymentStatusConfirmed:
		ev.Kind = entities.PaymentEventConfirmed
		ev.TransactionHash = record.TransactionHash.String
	case entities.PaymentStatusFailed:
		ev.Kind = entities.PaymentEventFailed
		ev.Reason = record.FailureReason.String
		ev.TimedOut = record.FailureReason.String == domainerrors.ErrMonitorTimeout.Error()
	default:
		ev.Kind = entities.PaymentEventMonitoring
	}
	return ev
}

func persistenceFailed(ctx context.Context, recordID uuid.UUID, err error) {
	metrics.PersistenceErrors.Inc()
	logger.Error(ctx, "Failed to persist payment status",
		zap.String("payment_id", recordID.String()),
		zap.Error(err),
	)
}
