package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	"stablepay.backend/internal/usecases"
	"stablepay.backend/pkg/logger"
)

type staleReconciler interface {
	ReconcileStale(ctx context.Context, creds entities.ProviderCredentials, cfg usecases.ReconcileConfig) (usecases.ReconcileResult, error)
}

// PaymentReconcileJob settles monitoring records that lost their session
type PaymentReconcileJob struct {
	reconciler staleReconciler
	creds      entities.ProviderCredentials
	cfg        usecases.ReconcileConfig
	interval   time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewPaymentReconcileJob creates the job. Status checks only carry the
// client id, there is no user token to forward.
func NewPaymentReconcileJob(reconciler staleReconciler, clientID string, interval time.Duration, cfg usecases.ReconcileConfig) *PaymentReconcileJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PaymentReconcileJob{
		reconciler: reconciler,
		creds:      entities.ProviderCredentials{ClientID: clientID},
		cfg:        cfg,
		interval:   interval,
		stop:       make(chan struct{}),
	}
}

func (j *PaymentReconcileJob) Start(ctx context.Context) {
	logger.Info(ctx, "Starting payment reconcile job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Payment reconcile job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Payment reconcile job stopped")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *PaymentReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *PaymentReconcileJob) reconcile(ctx context.Context) {
	if _, err := j.reconciler.ReconcileStale(ctx, j.creds, j.cfg); err != nil {
		logger.Error(ctx, "Error reconciling stale payments", zap.Error(err))
	}
}
