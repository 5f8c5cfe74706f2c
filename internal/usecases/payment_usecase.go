package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/domain/gateways"
	"stablepay.backend/internal/domain/repositories"
	"stablepay.backend/pkg/amount"
	"stablepay.backend/pkg/clock"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
	"stablepay.backend/pkg/redis"
)

// EventStore keeps the latest event of each payment
type EventStore interface {
	Save(ctx context.Context, paymentID string, event interface{}) error
	Load(ctx context.Context, paymentID string, out interface{}) error
}

// PaymentUsecase runs the payment execution and monitoring workflow
type PaymentUsecase struct {
	repo     repositories.PaymentRecordRepository
	provider gateways.PaymentProvider
	monitor  *TransactionMonitor
	funding  *FundingGapHandler
	events   EventStore
	sessions *SessionRegistry
	clock    clock.Clock
}

// NewPaymentUsecase creates a new payment usecase. events may be nil.
func NewPaymentUsecase(
	repo repositories.PaymentRecordRepository,
	provider gateways.PaymentProvider,
	events EventStore,
	clk clock.Clock,
	monitorCfg MonitorConfig,
	fundingCfg FundingConfig,
) *PaymentUsecase {
	return &PaymentUsecase{
		repo:     repo,
		provider: provider,
		monitor:  NewTransactionMonitor(provider, repo, clk, monitorCfg),
		funding:  NewFundingGapHandler(provider, clk, fundingCfg),
		events:   events,
		sessions: NewSessionRegistry(),
		clock:    clk,
	}
}

// Sessions exposes the registry of running workflows
func (u *PaymentUsecase) Sessions() *SessionRegistry {
	return u.sessions
}

// Submit validates input, persists a pending record and starts the workflow.
// Nothing is sent to the payment provider if the record cannot be stored.
func (u *PaymentUsecase) Submit(ctx context.Context, payerID uuid.UUID, creds entities.ProviderCredentials, input *entities.SubmitPaymentInput) (*Session, error) {
	record, err := buildPaymentRecord(payerID, input)
	if err != nil {
		return nil, err
	}

	if err := u.repo.Create(ctx, record); err != nil {
		logger.Error(ctx, "Failed to create payment record", zap.Error(err))
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	metrics.PaymentsSubmitted.WithLabelValues(record.ChainID, record.TokenSymbol).Inc()

	sessionCtx, cancel := context.WithCancel(logger.WithPayment(context.WithoutCancel(ctx), record.ID))
	session := newSession(record.ID, payerID, cancel)
	u.sessions.add(session)
	metrics.ActiveSessions.Inc()

	intentInput := entities.CreateIntentInput{
		Name:          "Payment to " + record.PayeeAddress,
		Description:   record.Message,
		PayerAddress:  record.PayerAddress,
		PayeeAddress:  record.PayeeAddress,
		TokenContract: record.TokenContract,
		Amount:        record.Amount,
		ChainID:       record.ChainID,
	}
	go u.run(sessionCtx, session, creds, record, intentInput)

	return session, nil
}

func (u *PaymentUsecase) run(ctx context.Context, s *Session, creds entities.ProviderCredentials, record *entities.PaymentRecord, input entities.CreateIntentInput) {
	defer func() {
		u.sessions.remove(s.RecordID)
		metrics.ActiveSessions.Dec()
		s.cancel()
		close(s.events)
		close(s.done)
	}()

	emit := func(ev entities.PaymentEvent) {
		u.publish(ctx, s, ev)
	}

	emit(entities.PaymentEvent{Kind: entities.PaymentEventSending})

	intent, err := u.provider.CreatePayment(ctx, creds, input)
	if err != nil {
		if ctx.Err() != nil {
			u.cancelled(ctx)
			return
		}
		// The record stays pending since nothing was executed, but keeps the reason.
		logger.Warn(ctx, "Payment intent creation failed", zap.Error(err))
		metrics.PaymentsFinished.WithLabelValues("create_failed").Inc()
		ev := entities.PaymentEvent{Kind: entities.PaymentEventFailed, Reason: err.Error()}
		if perr := u.repo.UpdateStatus(ctx, record.ID, entities.PaymentStatusUpdate{
			Status:        entities.PaymentStatusPending,
			FailureReason: nullString(err.Error()),
		}); perr != nil {
			ev.Degraded = true
			persistenceFailed(ctx, record.ID, perr)
		}
		emit(ev)
		return
	}

	res, err := u.provider.ExecutePayment(ctx, creds, intent.ID, record.PayerAddress)
	if err == nil {
		if res.Outcome == entities.ExecutionSucceeded {
			metrics.ExecutionOutcomes.WithLabelValues("succeeded").Inc()
		} else {
			metrics.ExecutionOutcomes.WithLabelValues("funding_required").Inc()
		}
	} else if ctx.Err() == nil {
		metrics.ExecutionOutcomes.WithLabelValues("error").Inc()
	}

	if err == nil && res.Outcome == entities.ExecutionFundingRequired {
		s.setAwaitingFunds(true)
		emit(entities.PaymentEvent{Kind: entities.PaymentEventAwaitingFunds, FundingLink: res.FundingLink})
		res, err = u.funding.Await(ctx, creds, intent.ID, record.PayerAddress, res.FundingLink, s.retry, func(link string) {
			emit(entities.PaymentEvent{Kind: entities.PaymentEventAwaitingFunds, FundingLink: link})
		})
		s.setAwaitingFunds(false)

		if errors.Is(err, domainerrors.ErrFundingTimeout) {
			metrics.PaymentsFinished.WithLabelValues("funding_timeout").Inc()
			emit(entities.PaymentEvent{Kind: entities.PaymentEventFailed, Reason: err.Error()})
			return
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			u.cancelled(ctx)
			return
		}
		logger.Warn(ctx, "Payment execution failed", zap.Error(err))
		emit(u.fail(ctx, record.ID, err.Error()))
		return
	}

	if err := u.repo.SetTransactionID(ctx, record.ID, res.TransactionID); err != nil {
		persistenceFailed(ctx, record.ID, err)
	}
	logger.Info(ctx, "Payment executed, monitoring transaction", zap.String("transaction_id", res.TransactionID))

	if err := u.monitor.Run(ctx, creds, record.ID, res.TransactionID, emit); err != nil {
		u.cancelled(ctx)
	}
}

func (u *PaymentUsecase) fail(ctx context.Context, recordID uuid.UUID, reason string) entities.PaymentEvent {
	metrics.PaymentsFinished.WithLabelValues("failed").Inc()
	ev := entities.PaymentEvent{Kind: entities.PaymentEventFailed, PaymentID: recordID, Reason: reason}
	err := u.repo.UpdateStatus(ctx, recordID, entities.PaymentStatusUpdate{
		Status:        entities.PaymentStatusFailed,
		FailureReason: nullString(reason),
	})
	if err != nil {
		ev.Degraded = true
		persistenceFailed(ctx, recordID, err)
	}
	return ev
}

func (u *PaymentUsecase) cancelled(ctx context.Context) {
	metrics.PaymentsFinished.WithLabelValues("cancelled").Inc()
	logger.Info(ctx, "Payment session cancelled")
}

// publish stamps ev, stores it as the latest event and hands it to the session.
func (u *PaymentUsecase) publish(ctx context.Context, s *Session, ev entities.PaymentEvent) {
	ev.PaymentID = s.RecordID
	ev.Timestamp = u.clock.Now()

	if u.events != nil {
		if err := u.events.Save(ctx, s.RecordID.String(), ev); err != nil {
			logger.Warn(ctx, "Failed to store payment event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
	logger.Debug(ctx, "Payment event", zap.String("kind", string(ev.Kind)))
	s.send(ctx, ev)
}

// RetryAfterFunding wakes a session that is waiting for the payer's wallet
func (u *PaymentUsecase) RetryAfterFunding(ctx context.Context, userID, recordID uuid.UUID) error {
	s, err := u.ownedSession(userID, recordID)
	if err != nil {
		return err
	}
	return s.RetryAfterFunding()
}

// Cancel stops a running session
func (u *PaymentUsecase) Cancel(ctx context.Context, userID, recordID uuid.UUID) error {
	s, err := u.ownedSession(userID, recordID)
	if err != nil {
		return err
	}
	s.Cancel()
	return nil
}

func (u *PaymentUsecase) ownedSession(userID, recordID uuid.UUID) (*Session, error) {
	s, ok := u.sessions.Get(recordID)
	if !ok || s.PayerID != userID {
		return nil, domainerrors.ErrSessionNotFound
	}
	return s, nil
}

// Shutdown cancels every running session
func (u *PaymentUsecase) Shutdown() {
	u.sessions.CancelAll()
}

// GetPayment returns a record the user sent or received
func (u *PaymentUsecase) GetPayment(ctx context.Context, userID, id uuid.UUID) (*entities.PaymentRecord, error) {
	record, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.PayerID != userID && record.PayeeID != userID {
		return nil, domainerrors.ErrNotFound
	}
	return record, nil
}

// ListPayments lists the user's sent and received records
func (u *PaymentUsecase) ListPayments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.PaymentRecord, int, error) {
	return u.repo.GetByUserID(ctx, userID, limit, offset)
}

// RefreshStatus runs one status check for a record the user sent
func (u *PaymentUsecase) RefreshStatus(ctx context.Context, userID uuid.UUID, creds entities.ProviderCredentials, id uuid.UUID) (*entities.PaymentRecord, error) {
	record, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.PayerID != userID {
		return nil, domainerrors.ErrNotFound
	}
	return u.monitor.CheckOnce(ctx, creds, record)
}

// LatestEvent returns the last workflow event stored for a record
func (u *PaymentUsecase) LatestEvent(ctx context.Context, userID, id uuid.UUID) (*entities.PaymentEvent, error) {
	if _, err := u.GetPayment(ctx, userID, id); err != nil {
		return nil, err
	}
	if u.events == nil {
		return nil, domainerrors.ErrNotFound
	}

	var ev entities.PaymentEvent
	if err := u.events.Load(ctx, id.String(), &ev); err != nil {
		if redis.IsNil(err) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

func buildPaymentRecord(payerID uuid.UUID, input *entities.SubmitPaymentInput) (*entities.PaymentRecord, error) {
	payeeID, err := uuid.Parse(input.PayeeID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid payee id", domainerrors.ErrInvalidInput)
	}
	if payeeID == payerID {
		return nil, fmt.Errorf("%w: cannot pay yourself", domainerrors.ErrInvalidInput)
	}

	payer, err := normalizeAddress("payer address", input.PayerAddress)
	if err != nil {
		return nil, err
	}
	payee, err := normalizeAddress("payee address", input.PayeeAddress)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := normalizeAddress("token address", input.TokenAddress)
	if err != nil {
		return nil, err
	}

	chainID := strings.TrimSpace(input.ChainID)
	if _, ok := entities.SupportedChains[chainID]; !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedChain, chainID)
	}
	token, ok := entities.FindToken(chainID, tokenAddr)
	if !ok {
		return nil, fmt.Errorf("%w: %s on chain %s", domainerrors.ErrUnsupportedToken, tokenAddr, chainID)
	}

	amt, err := amount.ParseBaseUnits(input.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidInput, err)
	}

	return &entities.PaymentRecord{
		PayerID:       payerID,
		PayeeID:       payeeID,
		PayerAddress:  payer,
		PayeeAddress:  payee,
		Amount:        amt.String(),
		TokenContract: token.ContractAddress,
		TokenSymbol:   token.Symbol,
		ChainID:       chainID,
		Message:       strings.TrimSpace(input.Message),
	}, nil
}

func normalizeAddress(field, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: invalid %s", domainerrors.ErrInvalidInput, field)
	}
	return common.HexToAddress(addr).Hex(), nil
}
