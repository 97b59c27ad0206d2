package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/crewledger/crewledger/internal/api/recovery"
)

// NewRouter wires the webhook and health endpoints.
func NewRouter(svc MessageHandler, pinger Pinger, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	webhook := NewWebhookHandler(svc, log)
	health := NewHealthHandler(pinger)

	router.HandleFunc("/webhook/sms", webhook.HandleInbound).Methods("POST")
	router.HandleFunc("/v0/health", health.CheckHealth).Methods("GET")

	return router
}
