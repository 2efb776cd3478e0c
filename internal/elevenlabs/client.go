package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io/v1/convai"

	talkToPageURL = "https://elevenlabs.io/app/talk-to"
)

var ErrAgentNotFound = errors.New("agent not found")

// Client talks to the ElevenLabs ConvAI API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type Agent struct {
	ID                 string         `json:"agent_id"`
	Name               string         `json:"name"`
	ConversationConfig map[string]any `json:"conversation_config"`
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (Agent, error) {
	var agent Agent
	err := c.doJSON(ctx, http.MethodGet, "/agents/"+url.PathEscape(agentID), nil, &agent)
	if err != nil {
		return Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

type createAgentRequest struct {
	FromAgentID        string         `json:"from_agent_id"`
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	ConversationConfig map[string]any `json:"conversation_config,omitempty"`
}

func (c *Client) createAgent(ctx context.Context, req createAgentRequest) (string, error) {
	var created struct {
		AgentID string `json:"agent_id"`
		ID      string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/agents/create", req, &created); err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}
	id := created.AgentID
	if id == "" {
		id = created.ID
	}
	if id == "" {
		return "", errors.New("create agent: response missing agent_id")
	}
	return id, nil
}

// Clone copies the configured base agent with the interview parameters
// substituted into its prompt and returns the new agent id together with a
// URL a respondent can open.
func (c *Client) Clone(ctx context.Context, baseAgentID, topic, goal, instructions string, durationMinutes int) (string, string, error) {
	base, err := c.GetAgent(ctx, baseAgentID)
	if err != nil {
		return "", "", err
	}

	vars := map[string]string{
		"interview_topic":         topic,
		"interview_goals":         goal,
		"interview_duration":      strconv.Itoa(durationMinutes),
		"additional_instructions": instructions,
	}

	name := "UX-Interviewer-" + truncate(topic, 20)
	agentID, err := c.createAgent(ctx, createAgentRequest{
		FromAgentID:        baseAgentID,
		Name:               name,
		Description:        goal,
		ConversationConfig: substitutePlaceholders(base.ConversationConfig, vars),
	})
	if err != nil {
		return "", "", err
	}

	shareURL, err := c.shareLink(ctx, agentID)
	if err != nil {
		return "", "", err
	}

	// A signed URL with overrides is preferred when the API grants one.
	if signed := c.signedLink(ctx, agentID, vars); signed != "" {
		shareURL = signed
	}

	return agentID, shareURL, nil
}

type linkResponse struct {
	URL       string `json:"url"`
	WebURL    string `json:"web_url"`
	Token     string `json:"token"`
	ShareLink struct {
		URL string `json:"url"`
	} `json:"share_link"`
}

// shareLink fetches the agent's share link, creating one when the agent has
// none yet, and falls back to the public talk-to page.
func (c *Client) shareLink(ctx context.Context, agentID string) (string, error) {
	path := "/agents/" + url.PathEscape(agentID) + "/link"

	var link linkResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &link)
	if errors.Is(err, ErrAgentNotFound) {
		err = c.doJSON(ctx, http.MethodPost, path, nil, &link)
	}
	if err != nil {
		return "", fmt.Errorf("share link: %w", err)
	}

	switch {
	case link.URL != "":
		return link.URL, nil
	case link.ShareLink.URL != "":
		return link.ShareLink.URL, nil
	case link.WebURL != "":
		return link.WebURL, nil
	case link.Token != "":
		return talkToPageURL + "?agent_id=" + url.QueryEscape(agentID) + "&token=" + url.QueryEscape(link.Token), nil
	default:
		return talkToPageURL + "?agent_id=" + url.QueryEscape(agentID), nil
	}
}

// signedLink is best-effort: any failure just means the share link is used.
func (c *Client) signedLink(ctx context.Context, agentID string, vars map[string]string) string {
	body := map[string]any{"overrides": map[string]any{"variables": vars}}

	var signed struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/agents/"+url.PathEscape(agentID)+"/signed-url", body, &signed); err != nil {
		return ""
	}
	return signed.URL
}

// ConversationStatus reports the processing status of a finished
// conversation ("processing", "done", ...).
func (c *Client) ConversationStatus(ctx context.Context, conversationID string) (string, error) {
	var conversation struct {
		Status string `json:"status"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &conversation)
	if err != nil {
		return "", fmt.Errorf("conversation status: %w", err)
	}
	return conversation.Status, nil
}

// ConversationAudio fetches the recording of a processed conversation.
func (c *Client) ConversationAudio(ctx context.Context, conversationID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/audio", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversation audio: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("conversation audio: status %d: %s", res.StatusCode, snippet)
	}
	return io.ReadAll(res.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrAgentNotFound
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("status %d: %s", res.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.APIKey)
	return req, nil
}

// substitutePlaceholders copies the base conversation config with the
// {{placeholder}} markers in the prompt fields replaced. The base agent's
// prompt is authored around these markers; an agent without them clones
// unchanged.
func substitutePlaceholders(config map[string]any, vars map[string]string) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	for _, key := range []string{"system_prompt", "first_message"} {
		text, ok := out[key].(string)
		if !ok {
			continue
		}
		for name, value := range vars {
			text = strings.ReplaceAll(text, "{{"+name+"}}", value)
		}
		out[key] = text
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
