package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedPayload marks a callback that matched none of the
	// documented payload shapes. Distinct from a missing token so schema
	// drift upstream is alertable instead of blending into routine
	// rejections.
	ErrUnrecognizedPayload = errors.New("unrecognized payload shape")

	// ErrNoCorrelationToken marks a recognized shape whose token slot is
	// empty; the callback can never be routed.
	ErrNoCorrelationToken = errors.New("no correlation token in payload")
)

type TranscriptEntry struct {
	Role           string  `json:"role"`
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

// NormalizedCallback is the shape-independent view of one callback. FolderID
// is the correlation token. At most one of AudioURL / PollAudio is set;
// both unset means a transcript-only delivery.
type NormalizedCallback struct {
	FolderID       string
	ConversationID string
	Transcript     []TranscriptEntry
	AudioURL       string
	PollAudio      bool
}

type clientData struct {
	FID              string         `json:"fid"`
	DynamicVariables map[string]any `json:"dynamic_variables"`
}

type callbackData struct {
	ConversationID string            `json:"conversation_id"`
	Transcript     []TranscriptEntry `json:"transcript"`
	AudioURL       string            `json:"audio_url"`
	HasAudio       bool              `json:"has_audio"`
	ClientData     *clientData       `json:"conversation_initiation_client_data"`
	Metadata       *clientData       `json:"metadata"`
}

// Normalize extracts the correlation token and artifacts from a raw
// callback body. The token probe order is fixed: the client data block's
// fid, then its dynamic variables, then the metadata block — first match
// wins. A "data" envelope is unwrapped when present.
func Normalize(body []byte) (NormalizedCallback, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return NormalizedCallback{}, fmt.Errorf("parse callback: %w", err)
	}

	raw := body
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		raw = envelope.Data
	}

	var data callbackData
	if err := json.Unmarshal(raw, &data); err != nil {
		return NormalizedCallback{}, fmt.Errorf("parse callback: %w", err)
	}

	if data.ClientData == nil && data.Metadata == nil {
		return NormalizedCallback{}, ErrUnrecognizedPayload
	}

	token := probeToken(data)
	if token == "" {
		return NormalizedCallback{}, ErrNoCorrelationToken
	}

	cb := NormalizedCallback{
		FolderID:       token,
		ConversationID: data.ConversationID,
		Transcript:     data.Transcript,
		AudioURL:       data.AudioURL,
	}
	if cb.AudioURL == "" && data.HasAudio && data.ConversationID != "" {
		cb.PollAudio = true
	}
	return cb, nil
}

func probeToken(data callbackData) string {
	if data.ClientData != nil {
		if data.ClientData.FID != "" {
			return data.ClientData.FID
		}
		if fid, ok := data.ClientData.DynamicVariables[TokenVariable].(string); ok && fid != "" {
			return fid
		}
	}
	if data.Metadata != nil && data.Metadata.FID != "" {
		return data.Metadata.FID
	}
	return ""
}

// TokenVariable is the dynamic-variable key the provisioner embeds in the
// shareable link and the agent echoes back.
const TokenVariable = "fid"
