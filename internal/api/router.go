package api

import (
	"net/http"
)

func NewRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/sessions", handler.Sessions)
	mux.HandleFunc("/v1/convai/webhook", handler.Webhook.HandleCallback)
	mux.HandleFunc("/healthz", handler.Webhook.HandleHealth)

	return mux
}
