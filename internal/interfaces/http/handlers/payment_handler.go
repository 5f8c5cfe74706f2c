package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/interfaces/http/middleware"
	"stablepay.backend/internal/interfaces/http/response"
	"stablepay.backend/internal/usecases"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/utils"
)

// PaymentStream is a running payment workflow as seen by the HTTP layer
type PaymentStream interface {
	ID() uuid.UUID
	Events() <-chan entities.PaymentEvent
	Cancel()
}

type PaymentService interface {
	Submit(ctx context.Context, payerID uuid.UUID, creds entities.ProviderCredentials, input *entities.SubmitPaymentInput) (PaymentStream, error)
	RetryAfterFunding(ctx context.Context, userID, recordID uuid.UUID) error
	Cancel(ctx context.Context, userID, recordID uuid.UUID) error
	GetPayment(ctx context.Context, userID, id uuid.UUID) (*entities.PaymentRecord, error)
	ListPayments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.PaymentRecord, int, error)
	RefreshStatus(ctx context.Context, userID uuid.UUID, creds entities.ProviderCredentials, id uuid.UUID) (*entities.PaymentRecord, error)
	LatestEvent(ctx context.Context, userID, id uuid.UUID) (*entities.PaymentEvent, error)
}

type paymentUsecaseAdapter struct {
	*usecases.PaymentUsecase
}

func (a paymentUsecaseAdapter) Submit(ctx context.Context, payerID uuid.UUID, creds entities.ProviderCredentials, input *entities.SubmitPaymentInput) (PaymentStream, error) {
	s, err := a.PaymentUsecase.Submit(ctx, payerID, creds, input)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPaymentService exposes a PaymentUsecase through PaymentService
func NewPaymentService(uc *usecases.PaymentUsecase) PaymentService {
	return paymentUsecaseAdapter{PaymentUsecase: uc}
}

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	paymentUsecase PaymentService
	clientID       string
}

// NewPaymentHandler creates a new payment handler. clientID is forwarded to
// the payment provider on every call.
func NewPaymentHandler(paymentUsecase PaymentService, clientID string) *PaymentHandler {
	return &PaymentHandler{paymentUsecase: paymentUsecase, clientID: clientID}
}

type paymentResponse struct {
	*entities.PaymentRecord
	DisplayAmount string `json:"displayAmount"`
	Direction     string `json:"direction"`
}

func toPaymentResponse(userID uuid.UUID, record *entities.PaymentRecord) paymentResponse {
	direction := "received"
	if record.PayerID == userID {
		direction = "sent"
	}
	return paymentResponse{
		PaymentRecord: record,
		DisplayAmount: usecases.DisplayAmount(record),
		Direction:     direction,
	}
}

func (h *PaymentHandler) credentials(c *gin.Context) entities.ProviderCredentials {
	return entities.ProviderCredentials{
		AuthToken: middleware.GetAuthToken(c),
		ClientID:  h.clientID,
	}
}

func (h *PaymentHandler) currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("User not authenticated"))
	}
	return userID, ok
}

func paymentIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid payment ID"))
		return uuid.Nil, false
	}
	return id, true
}

// SubmitPayment starts a payment and streams its workflow events as SSE.
// The stream ends with the terminal event, or when the client goes away,
// which cancels the workflow.
// POST /api/v1/payments
func (h *PaymentHandler) SubmitPayment(c *gin.Context) {
	var input entities.SubmitPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	stream, err := h.paymentUsecase.Submit(c.Request.Context(), userID, h.credentials(c), &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Payment-ID", stream.ID().String())
	c.Status(http.StatusOK)

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			logger.Info(c.Request.Context(), "Client left payment stream, cancelling",
				zap.String("payment_id", stream.ID().String()))
			stream.Cancel()
			return
		case ev, open := <-stream.Events():
			if !open {
				return
			}
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		}
	}
}

// RetryFunding re-executes a payment that is waiting for wallet funds
// POST /api/v1/payments/:id/retry
func (h *PaymentHandler) RetryFunding(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}

	if err := h.paymentUsecase.RetryAfterFunding(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"paymentId": id, "status": "retrying"})
}

// CancelPayment stops a running payment session
// DELETE /api/v1/payments/:id/session
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}

	if err := h.paymentUsecase.Cancel(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPayment gets a payment by ID
// GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}

	record, err := h.paymentUsecase.GetPayment(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"payment": toPaymentResponse(userID, record)})
}

// ListPayments lists payments the current user sent or received
// GET /api/v1/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	pagination := utils.GetPaginationParams(page, limit)

	records, total, err := h.paymentUsecase.ListPayments(c.Request.Context(), userID, pagination.Limit, pagination.CalculateOffset())
	if err != nil {
		response.Error(c, err)
		return
	}

	payments := make([]paymentResponse, 0, len(records))
	for _, record := range records {
		payments = append(payments, toPaymentResponse(userID, record))
	}

	response.Success(c, http.StatusOK, gin.H{
		"payments":   payments,
		"pagination": utils.CalculateMeta(int64(total), pagination.Page, pagination.Limit),
	})
}

// RefreshStatus asks the provider for the current transaction status once
// POST /api/v1/payments/:id/refresh
func (h *PaymentHandler) RefreshStatus(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}

	record, err := h.paymentUsecase.RefreshStatus(c.Request.Context(), userID, h.credentials(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"payment": toPaymentResponse(userID, record)})
}

// GetLatestEvent returns the last workflow event published for a payment
// GET /api/v1/payments/:id/events/latest
func (h *PaymentHandler) GetLatestEvent(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}

	ev, err := h.paymentUsecase.LatestEvent(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"event": ev})
}
