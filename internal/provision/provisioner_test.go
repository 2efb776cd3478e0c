package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeStorage struct {
	folderID   string
	folderLink string
	createErr  error
	permErr    error

	createdName   string
	createdParent string
	permFolder    string
}

func (s *fakeStorage) CreateFolder(ctx context.Context, parentID, name string) (string, string, error) {
	if s.createErr != nil {
		return "", "", s.createErr
	}
	s.createdParent = parentID
	s.createdName = name
	return s.folderID, s.folderLink, nil
}

func (s *fakeStorage) AllowLinkReading(ctx context.Context, folderID string) error {
	s.permFolder = folderID
	return s.permErr
}

type fakeCloner struct {
	agentID  string
	shareURL string
	err      error

	gotTopic    string
	gotDuration int
}

func (c *fakeCloner) Clone(ctx context.Context, baseAgentID, topic, goal, instructions string, durationMinutes int) (string, string, error) {
	if c.err != nil {
		return "", "", c.err
	}
	c.gotTopic = topic
	c.gotDuration = durationMinutes
	return c.agentID, c.shareURL, nil
}

func newProvisioner(storage *fakeStorage, cloner *fakeCloner) *Provisioner {
	return &Provisioner{
		Storage:        storage,
		Agents:         cloner,
		ParentFolderID: "parent",
		BaseAgentID:    "base-agent",
		Now:            func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
	}
}

func TestProvision(t *testing.T) {
	storage := &fakeStorage{folderID: "folder-123", folderLink: "https://drive.example.com/folder-123"}
	cloner := &fakeCloner{agentID: "agent-9", shareURL: "https://elevenlabs.io/app/talk-to?agent_id=agent-9"}
	p := newProvisioner(storage, cloner)

	result, err := p.Provision(context.Background(), Request{
		Topic:           "banking app",
		Goal:            "improve onboarding",
		DurationMinutes: 20,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if !strings.Contains(result.ShareURL, "interview_topic=banking%20app") {
		t.Fatalf("topic not encoded in link: %s", result.ShareURL)
	}
	if !strings.Contains(result.ShareURL, "fid=folder-123") {
		t.Fatalf("correlation token missing from link: %s", result.ShareURL)
	}
	if result.FolderID != "folder-123" {
		t.Fatalf("expected folder id in result, got %q", result.FolderID)
	}
	if storage.createdParent != "parent" {
		t.Fatalf("folder created under wrong parent %q", storage.createdParent)
	}
	if !strings.HasPrefix(storage.createdName, "UX-Interview-banking app-") {
		t.Fatalf("unexpected folder name %q", storage.createdName)
	}
	if storage.permFolder != "folder-123" {
		t.Fatalf("link permission not opened on the new folder")
	}
	if cloner.gotTopic != "banking app" || cloner.gotDuration != 20 {
		t.Fatalf("cloner received wrong parameters: %q %d", cloner.gotTopic, cloner.gotDuration)
	}
}

func TestProvisionOmitsEmptyInstructions(t *testing.T) {
	storage := &fakeStorage{folderID: "f1"}
	cloner := &fakeCloner{agentID: "a1", shareURL: "https://example.com/talk"}
	p := newProvisioner(storage, cloner)

	result, err := p.Provision(context.Background(), Request{Topic: "t", Goal: "g", DurationMinutes: 5})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if strings.Contains(result.ShareURL, "additional_instructions=") {
		t.Fatalf("empty instructions must be omitted: %s", result.ShareURL)
	}
}

func TestProvisionStorageFailure(t *testing.T) {
	storage := &fakeStorage{createErr: fmt.Errorf("quota exceeded")}
	cloner := &fakeCloner{agentID: "a1", shareURL: "https://example.com"}
	p := newProvisioner(storage, cloner)

	_, err := p.Provision(context.Background(), Request{Topic: "t", Goal: "g", DurationMinutes: 5})

	var collab *CollaboratorError
	if !errors.As(err, &collab) {
		t.Fatalf("expected CollaboratorError, got %v", err)
	}
	if collab.Collaborator != "drive" {
		t.Fatalf("expected drive attribution, got %q", collab.Collaborator)
	}
}

func TestProvisionClonerFailure(t *testing.T) {
	storage := &fakeStorage{folderID: "f1"}
	cloner := &fakeCloner{err: fmt.Errorf("base agent gone")}
	p := newProvisioner(storage, cloner)

	_, err := p.Provision(context.Background(), Request{Topic: "t", Goal: "g", DurationMinutes: 5})

	var collab *CollaboratorError
	if !errors.As(err, &collab) {
		t.Fatalf("expected CollaboratorError, got %v", err)
	}
	if collab.Collaborator != "elevenlabs" {
		t.Fatalf("expected elevenlabs attribution, got %q", collab.Collaborator)
	}
}

func TestProvisionPermissionFailureTolerated(t *testing.T) {
	storage := &fakeStorage{folderID: "f1", permErr: fmt.Errorf("permission api down")}
	cloner := &fakeCloner{agentID: "a1", shareURL: "https://example.com"}
	p := newProvisioner(storage, cloner)

	if _, err := p.Provision(context.Background(), Request{Topic: "t", Goal: "g", DurationMinutes: 5}); err != nil {
		t.Fatalf("permission failure must not fail provisioning: %v", err)
	}
}

func TestProvisionValidation(t *testing.T) {
	p := newProvisioner(&fakeStorage{}, &fakeCloner{})

	cases := []Request{
		{Goal: "g", DurationMinutes: 5},
		{Topic: "t", DurationMinutes: 5},
		{Topic: "t", Goal: "g"},
		{Topic: "t", Goal: "g", DurationMinutes: -1},
	}
	for _, req := range cases {
		if _, err := p.Provision(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestBuildShareLink(t *testing.T) {
	req := Request{Topic: "banking app", Goal: "improve onboarding", Instructions: "be casual", DurationMinutes: 20}

	link := BuildShareLink("https://elevenlabs.io/app/talk-to", "agent-1", req, "folder-1")

	for _, want := range []string{
		"agent_id=agent-1",
		"interview_topic=banking%20app",
		"interview_goal=improve%20onboarding",
		"interview_duration=20",
		"additional_instructions=be%20casual",
		"fid=folder-1",
	} {
		if !strings.Contains(link, want) {
			t.Fatalf("link missing %q: %s", want, link)
		}
	}
	if strings.Contains(link, "+") {
		t.Fatalf("spaces must encode as %%20, got %s", link)
	}
}

func TestBuildShareLinkExistingQuery(t *testing.T) {
	link := BuildShareLink("https://elevenlabs.io/app/talk-to?agent_id=agent-1&token=tok", "agent-1",
		Request{Topic: "t", Goal: "g", DurationMinutes: 5}, "f1")

	if strings.Count(link, "agent_id=") != 1 {
		t.Fatalf("agent_id duplicated: %s", link)
	}
	if strings.Contains(link, "?interview_topic") || !strings.Contains(link, "&interview_topic=t") {
		t.Fatalf("parameters must extend the existing query: %s", link)
	}
}
