package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/akshata29/aisearchmm-sub000/internal/chat"
)

type Poster struct {
	token  string
	client *http.Client
	logger *slog.Logger
	apiURL string
}

func NewPoster(token, apiURL string, timeout time.Duration, logger *slog.Logger) *Poster {
	return &Poster{
		token:  token,
		client: &http.Client{Timeout: timeout},
		apiURL: apiURL,
		logger: logger,
	}
}

// PostAnswer posts an answer into the originating thread: the answer text
// with inline tokens replaced by [n] references, followed by a numbered
// source list. Returns the message timestamp.
func (p *Poster) PostAnswer(ctx context.Context, channel, threadTS, answer string, citations []chat.CitationRecord) (string, error) {
	text, sources := FormatAnswer(answer, citations)

	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": text},
		},
	}
	if len(sources) > 0 {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": "Sources: " + strings.Join(sources, " | ")},
			},
		})
	}

	body, err := json.Marshal(map[string]any{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      text,
		"blocks":    blocks,
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	return p.post(ctx, body)
}

// PostNotice posts a plain threaded reply, used for timeout and failure
// guidance.
func (p *Poster) PostNotice(ctx context.Context, channel, threadTS, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = p.post(ctx, body)
	return err
}

func (p *Poster) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted to slack", "ts", slackResp.TS)
	return slackResp.TS, nil
}

// FormatAnswer renders answer text for the platform: resolved citation
// tokens become [n] markers and the referenced sources come back as a
// numbered title list. Unresolved tokens stay in the text untouched.
func FormatAnswer(answer string, citations []chat.CitationRecord) (string, []string) {
	segs := chat.Render(answer, citations)

	var sb strings.Builder
	for _, seg := range segs {
		if seg.IsRef() {
			fmt.Fprintf(&sb, "[%d]", seg.Ref)
			continue
		}
		sb.WriteString(seg.Text)
	}

	var sources []string
	for i, cit := range chat.Referenced(segs) {
		title := cit.Title
		if title == "" {
			title = cit.ContentID
		}
		sources = append(sources, fmt.Sprintf("[%d] %s", i+1, title))
	}
	return sb.String(), sources
}
