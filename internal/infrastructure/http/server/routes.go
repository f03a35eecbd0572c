package server

import (
	"net/http"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/infrastructure/http/middleware"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
)

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	monitoring.RegisterMetricsEndpoint(mux)

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth())

	mux.HandleFunc("POST /admin/instantiate", s.adminHandler.HandleInstantiate)
	mux.HandleFunc("PUT /admin/config", s.adminHandler.HandleUpdateConfig)
	mux.HandleFunc("GET /config", s.adminHandler.HandleGetConfig)

	mux.HandleFunc("POST /sales", s.saleHandler.HandleStartSale)
	mux.HandleFunc("POST /sales/end", s.saleHandler.HandleEndSale)
	mux.HandleFunc("GET /sales/state", s.saleHandler.HandleGetState)
	mux.HandleFunc("GET /sales/phase", s.saleHandler.HandleGetPhase)

	mux.HandleFunc("POST /tokens/mint", s.tokenHandler.HandleMint())
	mux.HandleFunc("GET /tokens/available", s.tokenHandler.HandleAvailableTokens())
	mux.HandleFunc("GET /tokens/{id}/available", s.tokenHandler.HandleIsTokenAvailable())
	mux.HandleFunc("GET /tokens/owned/{owner}", s.tokenHandler.HandleOwnedTokens())

	mux.HandleFunc("POST /purchase", s.purchaseHandler.HandlePurchase())
	mux.HandleFunc("POST /purchase/{id}", s.purchaseHandler.HandlePurchase())
	mux.HandleFunc("POST /refund", s.purchaseHandler.HandleClaimRefund())
	mux.HandleFunc("GET /purchases/{buyer}", s.purchaseHandler.HandleGetPurchases())

	handler := middleware.NewRecoveryMiddleware(s.logger)(mux)
	handler = middleware.NewLoggingMiddleware(s.logger)(handler)
	handler = middleware.NewRequestIDMiddleware()(handler)
	handler = monitoring.WrapHandler(handler)
	handler = s.corsMiddleware(handler)
	handler = s.timeoutMiddleware(handler)

	return handler
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Sender, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, s.requestTimeout, "Request timeout")
}

const defaultRequestTimeout = 90 * time.Second
