package main

import (
	"github.com/gin-gonic/gin"
	"stablepay.backend/internal/interfaces/http/handlers"
	"stablepay.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	paymentHandler *handlers.PaymentHandler
	chainHandler   *handlers.ChainHandler
	authMiddleware gin.HandlerFunc
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		// Payment routes (protected)
		payments := v1.Group("/payments")
		payments.Use(d.authMiddleware)
		{
			payments.POST("", middleware.IdempotencyMiddleware(), d.paymentHandler.SubmitPayment)
			payments.GET("", d.paymentHandler.ListPayments)
			payments.GET("/:id", d.paymentHandler.GetPayment)
			payments.POST("/:id/retry", d.paymentHandler.RetryFunding)
			payments.DELETE("/:id/session", d.paymentHandler.CancelPayment)
			payments.POST("/:id/refresh", d.paymentHandler.RefreshStatus)
			payments.GET("/:id/events/latest", d.paymentHandler.GetLatestEvent)
		}

		// Chain routes (public)
		chains := v1.Group("/chains")
		{
			chains.GET("", d.chainHandler.ListChains)
			chains.GET("/:id", d.chainHandler.GetChain)
		}
	}
}
