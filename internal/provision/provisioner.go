package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidRequest = errors.New("invalid provisioning request")

// Request is the operator's answer set, consumed exactly once.
type Request struct {
	Topic           string `json:"topic"`
	Goal            string `json:"goal"`
	Instructions    string `json:"instructions,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Result carries everything the operator needs to hand off a session. The
// folder id doubles as the correlation token embedded in ShareURL; nothing
// is persisted on this side.
type Result struct {
	ShareURL  string `json:"share_url"`
	FolderURL string `json:"folder_url"`
	FolderID  string `json:"folder_id"`
	AgentID   string `json:"agent_id"`
}

// CollaboratorError attributes a failure to the external service that
// caused it ("drive" or "elevenlabs").
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return e.Collaborator + ": " + e.Err.Error()
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

type Storage interface {
	CreateFolder(ctx context.Context, parentID, name string) (string, string, error)
	AllowLinkReading(ctx context.Context, folderID string) error
}

type AgentCloner interface {
	Clone(ctx context.Context, baseAgentID, topic, goal, instructions string, durationMinutes int) (string, string, error)
}

type Provisioner struct {
	Storage        Storage
	Agents         AgentCloner
	ParentFolderID string
	BaseAgentID    string
	Logger         *slog.Logger
	Now            func() time.Time
}

func (p *Provisioner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Provision creates the session folder, clones the interview agent, and
// assembles the shareable link with the folder id riding along as the
// correlation token. Nothing is rolled back on failure.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	log := p.logger().With("provision_id", uuid.NewString())

	folderName := fmt.Sprintf("UX-Interview-%s-%s", req.Topic, p.now().UTC().Format("20060102T150405"))
	folderID, folderURL, err := p.Storage.CreateFolder(ctx, p.ParentFolderID, folderName)
	if err != nil {
		return Result{}, &CollaboratorError{Collaborator: "drive", Err: err}
	}
	log.Info("session folder created", "folder_id", folderID)

	// Public-by-link is a deliberate simplification; losing the permission
	// only makes the folder link unusable for respondents, so it does not
	// fail the provisioning.
	if err := p.Storage.AllowLinkReading(ctx, folderID); err != nil {
		log.Warn("folder permission not opened", "folder_id", folderID, "error", err)
	}

	agentID, shareURL, err := p.Agents.Clone(ctx, p.BaseAgentID, req.Topic, req.Goal, req.Instructions, req.DurationMinutes)
	if err != nil {
		return Result{}, &CollaboratorError{Collaborator: "elevenlabs", Err: err}
	}
	log.Info("agent cloned", "agent_id", agentID)

	return Result{
		ShareURL:  BuildShareLink(shareURL, agentID, req, folderID),
		FolderURL: folderURL,
		FolderID:  folderID,
		AgentID:   agentID,
	}, nil
}

func validate(req Request) error {
	switch {
	case req.Topic == "":
		return fmt.Errorf("%w: missing topic", ErrInvalidRequest)
	case req.Goal == "":
		return fmt.Errorf("%w: missing goal", ErrInvalidRequest)
	case req.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	return nil
}
