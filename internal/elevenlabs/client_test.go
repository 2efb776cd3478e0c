package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient("test-key")
	c.BaseURL = srv.URL
	c.HTTP = srv.Client()
	return c
}

func TestClone(t *testing.T) {
	var createReq createAgentRequest
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents/base-agent", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("missing api key, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agent_id": "base-agent",
			"conversation_config": map[string]any{
				"system_prompt": "Interview about {{interview_topic}} with goal {{interview_goals}} for {{interview_duration}} minutes. {{additional_instructions}}",
				"first_message": "Let's talk about {{interview_topic}}!",
				"language":      "en",
			},
		})
	})
	mux.HandleFunc("POST /agents/create", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&createReq)
		_ = json.NewEncoder(w).Encode(map[string]string{"agent_id": "agent-9"})
	})
	mux.HandleFunc("GET /agents/agent-9/link", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok123"})
	})
	mux.HandleFunc("POST /agents/agent-9/signed-url", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	agentID, shareURL, err := newTestClient(srv).Clone(context.Background(), "base-agent",
		"banking app", "improve onboarding", "be casual", 20)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}

	if agentID != "agent-9" {
		t.Fatalf("expected agent-9, got %q", agentID)
	}
	if shareURL != talkToPageURL+"?agent_id=agent-9&token=tok123" {
		t.Fatalf("unexpected share url %q", shareURL)
	}

	if createReq.FromAgentID != "base-agent" {
		t.Fatalf("clone must reference the base agent, got %q", createReq.FromAgentID)
	}
	prompt, _ := createReq.ConversationConfig["system_prompt"].(string)
	if !strings.Contains(prompt, "Interview about banking app with goal improve onboarding for 20 minutes. be casual") {
		t.Fatalf("placeholders not substituted: %q", prompt)
	}
	first, _ := createReq.ConversationConfig["first_message"].(string)
	if first != "Let's talk about banking app!" {
		t.Fatalf("first message not substituted: %q", first)
	}
	if createReq.ConversationConfig["language"] != "en" {
		t.Fatalf("unrelated config keys must be preserved")
	}
}

func TestCloneCreatesMissingLink(t *testing.T) {
	linkGets, linkPosts := 0, 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents/base-agent", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"agent_id": "base-agent", "conversation_config": map[string]any{}})
	})
	mux.HandleFunc("POST /agents/create", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"agent_id": "agent-2"})
	})
	mux.HandleFunc("GET /agents/agent-2/link", func(w http.ResponseWriter, r *http.Request) {
		linkGets++
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /agents/agent-2/link", func(w http.ResponseWriter, r *http.Request) {
		linkPosts++
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://elevenlabs.io/s/agent-2"})
	})
	mux.HandleFunc("POST /agents/agent-2/signed-url", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, shareURL, err := newTestClient(srv).Clone(context.Background(), "base-agent", "t", "g", "", 10)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if shareURL != "https://elevenlabs.io/s/agent-2" {
		t.Fatalf("unexpected share url %q", shareURL)
	}
	if linkGets != 1 || linkPosts != 1 {
		t.Fatalf("expected get-then-create, got %d gets %d posts", linkGets, linkPosts)
	}
}

func TestClonePrefersSignedURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents/base-agent", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"agent_id": "base-agent", "conversation_config": map[string]any{}})
	})
	mux.HandleFunc("POST /agents/create", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"agent_id": "agent-3"})
	})
	mux.HandleFunc("GET /agents/agent-3/link", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://elevenlabs.io/s/agent-3"})
	})
	mux.HandleFunc("POST /agents/agent-3/signed-url", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://elevenlabs.io/signed/agent-3"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, shareURL, err := newTestClient(srv).Clone(context.Background(), "base-agent", "t", "g", "", 10)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if shareURL != "https://elevenlabs.io/signed/agent-3" {
		t.Fatalf("expected signed url, got %q", shareURL)
	}
}

func TestConversationStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/conv-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
	}))
	defer srv.Close()

	status, err := newTestClient(srv).ConversationStatus(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != "processing" {
		t.Fatalf("expected processing, got %q", status)
	}
}

func TestConversationAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/conv-1/audio" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	data, err := newTestClient(srv).ConversationAudio(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	if string(data) != "mp3" {
		t.Fatalf("unexpected bytes %q", data)
	}
}

func TestConversationAudioNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).ConversationAudio(context.Background(), "conv-1"); err == nil {
		t.Fatalf("expected error for missing audio")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("a very long interview topic", 6); got != "a very" {
		t.Fatalf("unexpected %q", got)
	}
}
