package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

// Mock PaymentRecordRepository
type MockPaymentRecordRepository struct {
	mock.Mock
}

func (m *MockPaymentRecordRepository) Create(ctx context.Context, record *entities.PaymentRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRecordRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.PaymentRecord, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entities.PaymentRecord), args.Int(1), args.Error(2)
}

func (m *MockPaymentRecordRepository) SetTransactionID(ctx context.Context, id uuid.UUID, transactionID string) error {
	args := m.Called(ctx, id, transactionID)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update entities.PaymentStatusUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*entities.PaymentRecord, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PaymentRecord), args.Error(1)
}

// memoryRecordRepo is an in-memory repository with the same terminal guard
// as the SQL implementation.
type memoryRecordRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*entities.PaymentRecord
	updates   []entities.PaymentStatus
	createErr error
	updateErr error
}

func newMemoryRecordRepo() *memoryRecordRepo {
	return &memoryRecordRepo{records: make(map[uuid.UUID]*entities.PaymentRecord)}
}

func (r *memoryRecordRepo) Create(_ context.Context, record *entities.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Status = entities.PaymentStatusPending
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r *memoryRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryRecordRepo) GetByUserID(_ context.Context, userID uuid.UUID, limit, offset int) ([]*entities.PaymentRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.PaymentRecord
	for _, rec := range r.records {
		if rec.PayerID == userID || rec.PayeeID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memoryRecordRepo) SetTransactionID(_ context.Context, id uuid.UUID, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return domainerrors.ErrTerminalStatus
	}
	rec.TransactionID.SetValid(transactionID)
	return nil
}

func (r *memoryRecordRepo) UpdateStatus(_ context.Context, id uuid.UUID, update entities.PaymentStatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	rec, ok := r.records[id]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return domainerrors.ErrTerminalStatus
	}
	rec.Status = update.Status
	if update.Status == entities.PaymentStatusConfirmed {
		now := time.Now()
		rec.ConfirmedAt = &now
		rec.TransactionHash = update.TransactionHash
	}
	if update.FailureReason.Valid {
		rec.FailureReason = update.FailureReason
	}
	r.updates = append(r.updates, update.Status)
	return nil
}

func (r *memoryRecordRepo) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*entities.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.PaymentRecord
	for _, rec := range r.records {
		unsettled := rec.Status == entities.PaymentStatusPending || rec.Status == entities.PaymentStatusMonitoring
		if unsettled && rec.TransactionID.Valid && rec.UpdatedAt.Before(cutoff) && len(out) < limit {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// put stores rec as-is, bypassing the create defaults.
func (r *memoryRecordRepo) put(rec *entities.PaymentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
}

func (r *memoryRecordRepo) statusUpdates() []entities.PaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.PaymentStatus, len(r.updates))
	copy(out, r.updates)
	return out
}

func (r *memoryRecordRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type statusReply struct {
	status *entities.TransactionStatus
	err    error
}

type executeReply struct {
	result *entities.ExecutionResult
	err    error
}

// scriptedProvider answers provider calls from fixed scripts. The last
// scripted reply repeats once a script runs out.
type scriptedProvider struct {
	mu        sync.Mutex
	createErr error
	executes  []executeReply
	statuses  []statusReply

	createCalls  int
	executeCalls int
	statusCalls  int
	lastCreds    entities.ProviderCredentials
}

func (p *scriptedProvider) CreatePayment(_ context.Context, creds entities.ProviderCredentials, input entities.CreateIntentInput) (*entities.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	p.lastCreds = creds
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &entities.PaymentIntent{
		ID:            "pi_1",
		PayerAddress:  input.PayerAddress,
		PayeeAddress:  input.PayeeAddress,
		TokenContract: input.TokenContract,
		ChainID:       input.ChainID,
		Amount:        input.Amount,
	}, nil
}

func (p *scriptedProvider) ExecutePayment(_ context.Context, creds entities.ProviderCredentials, intentID, payerAddress string) (*entities.ExecutionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executeCalls++
	p.lastCreds = creds
	reply := p.executes[min(p.executeCalls, len(p.executes))-1]
	return reply.result, reply.err
}

func (p *scriptedProvider) GetTransactionStatus(_ context.Context, _ entities.ProviderCredentials, transactionID string) (*entities.TransactionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	reply := p.statuses[min(p.statusCalls, len(p.statuses))-1]
	return reply.status, reply.err
}

func (p *scriptedProvider) calls() (create, execute, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createCalls, p.executeCalls, p.statusCalls
}

func queued() statusReply {
	return statusReply{status: &entities.TransactionStatus{Status: "queued"}}
}

func mined(hash string) statusReply {
	return statusReply{status: &entities.TransactionStatus{Status: "mined", TransactionHash: hash, BlockNumber: 7}}
}

func executed(txID string) executeReply {
	return executeReply{result: &entities.ExecutionResult{Outcome: entities.ExecutionSucceeded, TransactionID: txID, Status: "queued"}}
}

func fundingRequired(link string) executeReply {
	return executeReply{result: &entities.ExecutionResult{Outcome: entities.ExecutionFundingRequired, FundingLink: link}}
}

func repeat[T any](v T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}
