// internal/api/router.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"closedloop-wallet/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(walletHandler *handler.WalletHandler) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)                       // Add a request ID to the context
	r.Use(middleware.RealIP)                          // Use the real IP address
	r.Use(middleware.Logger)                          // Log HTTP requests
	r.Use(middleware.Recoverer)                       // Recover from panics and return 500
	r.Use(middleware.Timeout(handler.DefaultTimeout)) // Set a default timeout for requests

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", walletHandler.CreateUser)
		r.Route("/users/{externalUserID}", func(r chi.Router) {
			r.Get("/balance", walletHandler.GetBalance)
			r.Get("/entries", walletHandler.GetEntryHistory)
			r.Post("/top-up", walletHandler.TopUp)
			r.Post("/bonus", walletHandler.Bonus)
			r.Post("/spend", walletHandler.Spend)
		})

		r.Get("/asset-types", walletHandler.ListAssetTypes)
		r.Get("/transactions/{transactionID}", walletHandler.GetTransaction)
	})

	return r
}
