package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"intervox/internal/provision"
)

const (
	msgStart = "Hi! I will set up a UX interviewer for you.\n\n" +
		"1/4 \U0001F4DA What is the research topic? (e.g. a mobile banking app)"
	msgGoal         = "2/4 \U0001F3AF What is the research goal? (e.g. improve onboarding conversion)"
	msgInstructions = "3/4 \U0001F4DD Any extra instructions for the agent? Send - if none.\n" +
		"For example: keep the tone informal, avoid technical jargon"
	msgDuration     = "4/4 ⏱ Planned interview duration in minutes? (e.g. 20)"
	msgBadDuration  = "Please send the duration as a whole number of minutes, e.g. 20."
	msgWorking      = "⏳ Creating the agent and the folder, give me a few seconds…"
	msgCancelled    = "Intake cancelled. Send /start to begin again."
	msgNoSession    = "Send /start to begin a new interview setup."
	msgDoneTemplate = "Done! \U0001F389\n\n" +
		"• Interview link (valid for 15 minutes): %s\n" +
		"• Google Drive folder: %s\n\n" +
		"Hand the link to respondents right away; after it expires, run /start again.\n" +
		"Recordings and transcripts will land in the folder. Good luck!"
)

type Provisioner interface {
	Provision(ctx context.Context, req provision.Request) (provision.Result, error)
}

// Conversation drives the four-step intake: topic, goal, extra
// instructions, duration. It is transport-agnostic; the Telegram loop just
// relays text in and replies out.
type Conversation struct {
	Sessions    *SessionStore
	Provisioner Provisioner
	Logger      *slog.Logger
	Timeout     time.Duration
}

func (c *Conversation) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Conversation) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 2 * time.Minute
}

// Handle consumes one operator message and returns the replies to send, in
// order.
func (c *Conversation) Handle(ctx context.Context, chatID int64, text string) []string {
	text = strings.TrimSpace(text)

	switch text {
	case "/start":
		c.Sessions.Start(chatID)
		return []string{msgStart}
	case "/cancel":
		c.Sessions.Delete(chatID)
		return []string{msgCancelled}
	}

	session, ok := c.Sessions.Get(chatID)
	if !ok {
		return []string{msgNoSession}
	}

	switch session.Step {
	case StepTopic:
		session.Request.Topic = text
		session.Step = StepGoal
		return []string{msgGoal}
	case StepGoal:
		session.Request.Goal = text
		session.Step = StepInstructions
		return []string{msgInstructions}
	case StepInstructions:
		if text != "-" {
			session.Request.Instructions = text
		}
		session.Step = StepDuration
		return []string{msgDuration}
	case StepDuration:
		minutes, err := strconv.Atoi(text)
		if err != nil || minutes <= 0 {
			return []string{msgBadDuration}
		}
		session.Request.DurationMinutes = minutes
		request := session.Request
		c.Sessions.Delete(chatID)
		return []string{msgWorking, c.provision(ctx, chatID, request)}
	}

	return []string{msgNoSession}
}

func (c *Conversation) provision(ctx context.Context, chatID int64, req provision.Request) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	result, err := c.Provisioner.Provision(ctx, req)
	if err != nil {
		c.logger().Error("provisioning failed", "chat_id", chatID, "error", err)
		var collab *provision.CollaboratorError
		if errors.As(err, &collab) {
			switch collab.Collaborator {
			case "drive":
				return "Could not create the Google Drive folder: " + collab.Err.Error()
			case "elevenlabs":
				return "ElevenLabs error: " + collab.Err.Error()
			}
		}
		return "Something went wrong: " + err.Error()
	}

	return fmt.Sprintf(msgDoneTemplate, result.ShareURL, result.FolderURL)
}
