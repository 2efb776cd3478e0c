package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"intervox/internal/api"
	"intervox/internal/auth"
	"intervox/internal/config"
	"intervox/internal/drive"
	"intervox/internal/elevenlabs"
	"intervox/internal/ingest"
	"intervox/internal/provision"
	"intervox/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	server := newServer(cfg, logger)

	logger.Info("intervox-gateway listening", "addr", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func newServer(cfg config.Config, logger *slog.Logger) *http.Server {
	accountJSON, err := cfg.ServiceAccount()
	if err != nil {
		log.Fatalf("service account error: %v", err)
	}
	account, err := drive.LoadServiceAccount(accountJSON)
	if err != nil {
		log.Fatalf("service account error: %v", err)
	}

	driveClient := drive.NewClient(drive.NewTokenSource(account))

	elevenClient := elevenlabs.NewClient(cfg.ElevenLabsAPIKey)
	if cfg.ElevenLabsBaseURL != "" {
		elevenClient.BaseURL = cfg.ElevenLabsBaseURL
	}

	provisioner := &provision.Provisioner{
		Storage:        driveClient,
		Agents:         elevenClient,
		ParentFolderID: cfg.DriveParentFolderID,
		BaseAgentID:    cfg.BaseAgentID,
		Logger:         logger.With("component", "provisioner"),
	}

	pipeline := &ingest.Pipeline{
		Storage:      driveClient,
		Audio:        elevenClient,
		Resolver:     ingest.NewResolver(driveClient),
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		Logger:       logger.With("component", "ingest"),
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	}
	dispatcher := ingest.NewDispatcher(pipeline, int64(cfg.MaxConcurrentIngests), logger.With("component", "dispatch"))

	h := &api.Handler{
		Auth:        &auth.TokenAuthenticator{Token: cfg.OperatorToken},
		Provisioner: provisioner,
		Webhook: &webhook.Handler{
			Secret: cfg.WebhookSecret,
			Ingest: dispatcher,
			Logger: logger.With("component", "webhook"),
		},
		Logger: logger.With("component", "api"),
	}

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
