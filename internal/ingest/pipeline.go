package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"intervox/internal/webhook"
)

const (
	transcriptsFolder = "transcripts"
	audioFolder       = "audio"

	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 90 * time.Second
)

var errAudioNotReady = errors.New("audio not ready")

// AudioSource resolves a conversation's recording via the agent-cloning
// collaborator. *elevenlabs.Client satisfies it.
type AudioSource interface {
	ConversationStatus(ctx context.Context, conversationID string) (string, error)
	ConversationAudio(ctx context.Context, conversationID string) ([]byte, error)
}

// Pipeline files callback artifacts into the session folder. Each artifact
// is handled independently: a failure in one is logged and never blocks a
// sibling. There is no transaction and no retry beyond the audio poll.
type Pipeline struct {
	Storage  Storage
	Audio    AudioSource
	Resolver *Resolver
	HTTP     *http.Client
	Logger   *slog.Logger

	PollInterval time.Duration
	PollTimeout  time.Duration
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return http.DefaultClient
}

func (p *Pipeline) pollInterval() time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return DefaultPollInterval
}

func (p *Pipeline) pollTimeout() time.Duration {
	if p.PollTimeout > 0 {
		return p.PollTimeout
	}
	return DefaultPollTimeout
}

// Ingest stores whatever artifacts the callback carries. Duplicate
// deliveries produce duplicate files by design; only folders deduplicate.
func (p *Pipeline) Ingest(ctx context.Context, cb webhook.NormalizedCallback) {
	name := cb.ConversationID
	if name == "" {
		name = "conversation-" + uuid.NewString()
	}
	log := p.logger().With("folder_id", cb.FolderID, "conversation_id", name)

	if len(cb.Transcript) > 0 {
		p.runArtifact(log, "transcript", func() error {
			return p.storeTranscript(ctx, cb, name)
		})
	}

	switch {
	case cb.AudioURL != "":
		p.runArtifact(log, "audio", func() error {
			return p.storeDirectAudio(ctx, cb, name)
		})
	case cb.PollAudio:
		p.runArtifact(log, "audio", func() error {
			return p.storePolledAudio(ctx, cb)
		})
	}
}

// runArtifact isolates one artifact's failure, panics included.
func (p *Pipeline) runArtifact(log *slog.Logger, kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("artifact handler panicked", "artifact", kind, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		log.Error("artifact abandoned", "artifact", kind, "error", err)
		return
	}
	log.Info("artifact stored", "artifact", kind)
}

func (p *Pipeline) storeTranscript(ctx context.Context, cb webhook.NormalizedCallback, name string) error {
	folderID, err := p.Resolver.Resolve(ctx, cb.FolderID, transcriptsFolder)
	if err != nil {
		return fmt.Errorf("resolve %s folder: %w", transcriptsFolder, err)
	}

	vtt := FormatWebVTT(BuildCues(cb.Transcript))
	if _, err := p.Storage.Upload(ctx, folderID, name+".vtt", "text/vtt", vtt); err != nil {
		return fmt.Errorf("upload transcript: %w", err)
	}
	return nil
}

func (p *Pipeline) storeDirectAudio(ctx context.Context, cb webhook.NormalizedCallback, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cb.AudioURL, nil)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	res, err := p.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("fetch audio: status %d", res.StatusCode)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}

	mimeType := res.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return p.uploadAudio(ctx, cb.FolderID, audioFileName(cb.AudioURL, name), mimeType, data)
}

// storePolledAudio waits for the recording to become fetchable, polling the
// status endpoint on a fixed interval until the configured ceiling. On
// timeout nothing is written.
func (p *Pipeline) storePolledAudio(ctx context.Context, cb webhook.NormalizedCallback) error {
	poll := func() (string, error) {
		status, err := p.Audio.ConversationStatus(ctx, cb.ConversationID)
		if err != nil {
			return "", err
		}
		if !conversationReady(status) {
			return "", fmt.Errorf("%w: status %q", errAudioNotReady, status)
		}
		return status, nil
	}

	_, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.pollInterval())),
		backoff.WithMaxElapsedTime(p.pollTimeout()),
	)
	if err != nil {
		return fmt.Errorf("poll conversation: %w", err)
	}

	data, err := p.Audio.ConversationAudio(ctx, cb.ConversationID)
	if err != nil {
		return err
	}
	return p.uploadAudio(ctx, cb.FolderID, cb.ConversationID+".mp3", "audio/mpeg", data)
}

func (p *Pipeline) uploadAudio(ctx context.Context, sessionFolderID, name, mimeType string, data []byte) error {
	folderID, err := p.Resolver.Resolve(ctx, sessionFolderID, audioFolder)
	if err != nil {
		return fmt.Errorf("resolve %s folder: %w", audioFolder, err)
	}
	if _, err := p.Storage.Upload(ctx, folderID, name, mimeType, data); err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}
	return nil
}

func conversationReady(status string) bool {
	switch status {
	case "done", "processed":
		return true
	}
	return false
}

// audioFileName derives a filename from the fetch URL, falling back to the
// conversation name when the URL path ends without one.
func audioFileName(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback + ".mp3"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return fallback + ".mp3"
	}
	return base
}
