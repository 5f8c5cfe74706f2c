package usecases

import (
	"context"
	"time"

	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/domain/gateways"
	"stablepay.backend/pkg/clock"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
)

// FundingConfig controls the passive re-check of an unfunded intent.
// MaxChecks <= 0 disables passive checks; only explicit retries execute.
type FundingConfig struct {
	InitialDelay  time.Duration
	RetryInterval time.Duration
	MaxChecks     int
}

// FundingGapHandler re-executes an intent until the payer's wallet is funded
type FundingGapHandler struct {
	provider gateways.PaymentProvider
	clock    clock.Clock
	cfg      FundingConfig
}

// NewFundingGapHandler creates a new funding gap handler
func NewFundingGapHandler(provider gateways.PaymentProvider, clk clock.Clock, cfg FundingConfig) *FundingGapHandler {
	return &FundingGapHandler{provider: provider, clock: clk, cfg: cfg}
}

// Await re-executes intentID after each passive delay or each value received
// on retry, until execution succeeds. onFundingRequired is called with the
// funding link after every explicit retry that is still unfunded, and after
// a passive check when the link changed. Execution errors are returned as-is;
// ErrFundingTimeout is returned once MaxChecks passive checks are spent.
func (h *FundingGapHandler) Await(
	ctx context.Context,
	creds entities.ProviderCredentials,
	intentID, payerAddress, fundingLink string,
	retry <-chan struct{},
	onFundingRequired func(link string),
) (*entities.ExecutionResult, error) {
	checks := 0
	delay := h.cfg.InitialDelay
	lastLink := fundingLink

	for {
		var (
			timer   clock.Timer
			passive <-chan time.Time
		)
		if h.cfg.MaxChecks > 0 {
			timer = h.clock.NewTimer(delay)
			passive = timer.C()
		}

		manual := false
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		case <-retry:
			manual = true
			stopTimer(timer)
		case <-passive:
			checks++
		}

		res, err := h.provider.ExecutePayment(ctx, creds, intentID, payerAddress)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.ExecutionOutcomes.WithLabelValues("error").Inc()
			return nil, err
		}
		if res.Outcome == entities.ExecutionSucceeded {
			metrics.ExecutionOutcomes.WithLabelValues("succeeded").Inc()
			return res, nil
		}
		metrics.ExecutionOutcomes.WithLabelValues("funding_required").Inc()

		if manual || res.FundingLink != lastLink {
			onFundingRequired(res.FundingLink)
		}
		lastLink = res.FundingLink

		if !manual && checks >= h.cfg.MaxChecks {
			logger.Info(ctx, "Passive funding checks exhausted",
				zap.String("intent_id", intentID),
				zap.Int("checks", checks),
			)
			return nil, domainerrors.ErrFundingTimeout
		}
		delay = h.cfg.RetryInterval
	}
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
