package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/domain/gateways"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
)

const (
	ClientIDHeader = "X-Client-Id"

	opCreatePayment  = "create_payment"
	opExecutePayment = "execute_payment"
	opGetStatus      = "get_transaction_status"

	// Maximum response body size read from the provider (1MB)
	maxResponseSize = 1 << 20
)

// Config holds provider client settings
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
}

type rawResponse struct {
	status int
	body   []byte
}

type createPaymentRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	PayerAddress     string `json:"payerAddress"`
	RecipientAddress string `json:"recipientAddress"`
	TokenAddress     string `json:"tokenAddress"`
	Amount           string `json:"amount"`
	ChainID          string `json:"chainId"`
}

type createPaymentResponse struct {
	ID          string `json:"id"`
	FundingLink string `json:"fundingLink"`
}

type executePaymentRequest struct {
	PayerAddress string `json:"payerAddress"`
}

type executePaymentResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	FundingLink   string `json:"fundingLink"`
}

var _ gateways.PaymentProvider = (*Client)(nil)

// Client talks to the external wallet/payment API
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*rawResponse]
}

// NewClient creates a provider client guarded by a circuit breaker
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "payment-provider",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: isSuccessfulForBreaker,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn(context.Background(), "Provider circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[*rawResponse](settings),
	}
}

// callerAborted marks a request that failed because the caller's context
// ended, not because the provider misbehaved.
type callerAborted struct {
	err error
}

func (e *callerAborted) Error() string { return e.err.Error() }
func (e *callerAborted) Unwrap() error { return e.err }

// Only transport failures and 5xx responses count against the breaker.
// Requests aborted by their caller never do.
func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	var aborted *callerAborted
	if errors.As(err, &aborted) {
		return true
	}
	var upstream *domainerrors.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status > 0 && upstream.Status < http.StatusInternalServerError
	}
	return false
}

// CreatePayment requests a new payment intent
func (c *Client) CreatePayment(ctx context.Context, creds entities.ProviderCredentials, input entities.CreateIntentInput) (*entities.PaymentIntent, error) {
	body := createPaymentRequest{
		Name:             input.Name,
		Description:      input.Description,
		PayerAddress:     input.PayerAddress,
		RecipientAddress: input.PayeeAddress,
		TokenAddress:     input.TokenContract,
		Amount:           input.Amount,
		ChainID:          input.ChainID,
	}

	resp, err := c.do(ctx, opCreatePayment, http.MethodPost, "/payments", creds, true, body)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, domainerrors.NewUpstreamError(opCreatePayment, resp.status, string(resp.body))
	}

	var out createPaymentResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, &domainerrors.UpstreamError{Op: opCreatePayment, Status: resp.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.ID == "" {
		return nil, domainerrors.NewUpstreamError(opCreatePayment, resp.status, "missing payment id")
	}

	return &entities.PaymentIntent{
		ID:            out.ID,
		PayerAddress:  input.PayerAddress,
		PayeeAddress:  input.PayeeAddress,
		TokenContract: input.TokenContract,
		ChainID:       input.ChainID,
		Amount:        input.Amount,
		Description:   input.Description,
		FundingLink:   out.FundingLink,
	}, nil
}

// ExecutePayment asks the provider to execute an intent from payerAddress.
// HTTP 402 is returned as ExecutionFundingRequired, not as an error.
func (c *Client) ExecutePayment(ctx context.Context, creds entities.ProviderCredentials, intentID, payerAddress string) (*entities.ExecutionResult, error) {
	path := "/payments/" + url.PathEscape(intentID) + "/execute"
	resp, err := c.do(ctx, opExecutePayment, http.MethodPost, path, creds, true, executePaymentRequest{PayerAddress: payerAddress})
	if err != nil {
		return nil, err
	}

	var out executePaymentResponse
	switch {
	case resp.status == http.StatusPaymentRequired:
		if err := json.Unmarshal(resp.body, &out); err != nil || out.FundingLink == "" {
			return nil, domainerrors.NewUpstreamError(opExecutePayment, resp.status, "funding response without link")
		}
		return &entities.ExecutionResult{
			Outcome:     entities.ExecutionFundingRequired,
			FundingLink: out.FundingLink,
		}, nil
	case isSuccess(resp.status):
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return nil, &domainerrors.UpstreamError{Op: opExecutePayment, Status: resp.status, Err: fmt.Errorf("decode response: %w", err)}
		}
		if out.TransactionID == "" {
			return nil, domainerrors.NewUpstreamError(opExecutePayment, resp.status, "missing transaction id")
		}
		return &entities.ExecutionResult{
			Outcome:       entities.ExecutionSucceeded,
			TransactionID: out.TransactionID,
			Status:        out.Status,
		}, nil
	default:
		return nil, domainerrors.NewUpstreamError(opExecutePayment, resp.status, string(resp.body))
	}
}

// GetTransactionStatus fetches the provider's view of a transaction
func (c *Client) GetTransactionStatus(ctx context.Context, creds entities.ProviderCredentials, transactionID string) (*entities.TransactionStatus, error) {
	path := "/transactions/" + url.PathEscape(transactionID) + "/status"
	resp, err := c.do(ctx, opGetStatus, http.MethodGet, path, creds, false, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, domainerrors.NewUpstreamError(opGetStatus, resp.status, string(resp.body))
	}

	var out entities.TransactionStatus
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, &domainerrors.UpstreamError{Op: opGetStatus, Status: resp.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, creds entities.ProviderCredentials, withAuth bool, payload interface{}) (*rawResponse, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %w", op, err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(ClientIDHeader, creds.ClientID)
		if withAuth {
			req.Header.Set("Authorization", "Bearer "+creds.AuthToken)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, abortedOr(ctx, &domainerrors.UpstreamError{Op: op, Err: err})
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		if err != nil {
			return nil, abortedOr(ctx, &domainerrors.UpstreamError{Op: op, Status: httpResp.StatusCode, Err: fmt.Errorf("read response: %w", err)})
		}
		raw := &rawResponse{status: httpResp.StatusCode, body: body}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return raw, domainerrors.NewUpstreamError(op, httpResp.StatusCode, string(body))
		}
		return raw, nil
	})

	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.status)
	}
	metrics.ProviderRequestDuration.WithLabelValues(op, code).Observe(time.Since(start).Seconds())

	var aborted *callerAborted
	if errors.As(err, &aborted) {
		return nil, aborted.err
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domainerrors.UpstreamError{Op: op, Err: err}
		}
		logger.Warn(ctx, "Provider request failed", zap.String("op", op), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func abortedOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &callerAborted{err: err}
	}
	return err
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
