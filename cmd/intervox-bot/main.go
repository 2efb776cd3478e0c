package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"intervox/internal/config"
	"intervox/internal/drive"
	"intervox/internal/elevenlabs"
	"intervox/internal/intake"
	"intervox/internal/provision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.TelegramToken == "" {
		log.Fatalf("config error: missing TELEGRAM_BOT_TOKEN")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	conversation := newConversation(cfg, logger)

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("telegram error: %v", err)
	}
	logger.Info("intervox-bot started", "username", bot.Self.UserName)

	go purgeLoop(conversation.Sessions, logger)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30

	ctx := context.Background()
	for update := range bot.GetUpdatesChan(updateConfig) {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		chatID := update.Message.Chat.ID
		for _, reply := range conversation.Handle(ctx, chatID, update.Message.Text) {
			if _, err := bot.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
				logger.Error("send failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

func newConversation(cfg config.Config, logger *slog.Logger) *intake.Conversation {
	accountJSON, err := cfg.ServiceAccount()
	if err != nil {
		log.Fatalf("service account error: %v", err)
	}
	account, err := drive.LoadServiceAccount(accountJSON)
	if err != nil {
		log.Fatalf("service account error: %v", err)
	}

	elevenClient := elevenlabs.NewClient(cfg.ElevenLabsAPIKey)
	if cfg.ElevenLabsBaseURL != "" {
		elevenClient.BaseURL = cfg.ElevenLabsBaseURL
	}

	return &intake.Conversation{
		Sessions: intake.NewSessionStore(cfg.SessionTTL),
		Provisioner: &provision.Provisioner{
			Storage:        drive.NewClient(drive.NewTokenSource(account)),
			Agents:         elevenClient,
			ParentFolderID: cfg.DriveParentFolderID,
			BaseAgentID:    cfg.BaseAgentID,
			Logger:         logger.With("component", "provisioner"),
		},
		Logger: logger.With("component", "intake"),
	}
}

func purgeLoop(sessions *intake.SessionStore, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if n := sessions.PurgeExpired(); n > 0 {
			logger.Info("purged stale intake sessions", "count", n)
		}
	}
}
