package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"stablepay.backend/internal/domain/entities"
	"stablepay.backend/internal/interfaces/http/handlers"
)

func TestRegisterAPIV1Routes_RegistersKeyRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	registerAPIV1Routes(r, routeDeps{
		paymentHandler: &handlers.PaymentHandler{},
		chainHandler:   &handlers.ChainHandler{},
		authMiddleware: func(c *gin.Context) {
			c.Next()
		},
	})

	routes := r.Routes()
	expects := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/payments"},
		{"GET", "/api/v1/payments"},
		{"GET", "/api/v1/payments/:id"},
		{"POST", "/api/v1/payments/:id/retry"},
		{"DELETE", "/api/v1/payments/:id/session"},
		{"POST", "/api/v1/payments/:id/refresh"},
		{"GET", "/api/v1/payments/:id/events/latest"},
		{"GET", "/api/v1/chains"},
		{"GET", "/api/v1/chains/:id"},
	}

	for _, exp := range expects {
		found := false
		for _, route := range routes {
			if route.Method == exp.method && route.Path == exp.path {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("route %s %s not registered", exp.method, exp.path)
		}
	}
}

func TestRegisterAPIV1Routes_PaymentsRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	registerAPIV1Routes(r, routeDeps{
		paymentHandler: &handlers.PaymentHandler{},
		chainHandler:   handlers.NewChainHandler(entities.SupportedChains),
		authMiddleware: func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) },
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// chains stay public
	req = httptest.NewRequest(http.MethodGet, "/api/v1/chains", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
