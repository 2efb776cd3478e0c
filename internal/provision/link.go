package provision

import (
	"net/url"
	"strconv"
	"strings"
)

// TokenParam is the query key carrying the correlation token. The webhook
// expects the same key echoed back inside the callback payload.
const TokenParam = "fid"

type queryParam struct {
	key   string
	value string
}

// BuildShareLink appends the interview parameters and the correlation token
// to the agent's share URL. Empty values are omitted entirely.
func BuildShareLink(shareURL, agentID string, req Request, folderID string) string {
	params := []queryParam{
		{"interview_topic", req.Topic},
		{"interview_goal", req.Goal},
		{"interview_duration", strconv.Itoa(req.DurationMinutes)},
		{"additional_instructions", req.Instructions},
		{TokenParam, folderID},
	}
	if !strings.Contains(shareURL, "agent_id=") {
		params = append([]queryParam{{"agent_id", agentID}}, params...)
	}

	var b strings.Builder
	b.WriteString(shareURL)
	sep := "?"
	if strings.Contains(shareURL, "?") {
		sep = "&"
	}
	for _, p := range params {
		if p.value == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(p.key)
		b.WriteString("=")
		b.WriteString(encodeQueryValue(p.value))
		sep = "&"
	}
	return b.String()
}

// encodeQueryValue percent-encodes spaces as %20 rather than +, which the
// interview page's query parser requires.
func encodeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
