package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akshata29/aisearchmm-sub000/internal/chat"
	"github.com/akshata29/aisearchmm-sub000/internal/stream"
)

// ProtocolError marks a response that violates the wire contract, such as
// a stream with no readable body. It is fatal immediately and never
// retried: the backend is broken, not busy.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

// ExhaustedRetriesError is returned when every attempt failed. The last
// underlying error is preserved and unwrappable.
type ExhaustedRetriesError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Err
}

// Answer is one complete backend response: the full answer text and the
// citation set that accompanied it.
type Answer struct {
	Text      string
	Citations []chat.CitationRecord
}

// Options configures one Ask call. The retrieval fields are forwarded to
// the backend verbatim.
type Options struct {
	ChunkCount     int
	RankingMode    string
	Streaming      bool
	KnowledgeAgent bool
	History        []chat.Message
}

// Client calls the answer backend and aggregates a whole response per
// question, retrying transient failures with linear backoff. It is the
// request/response counterpart of the live streaming session: instead of
// incremental entries it produces one final answer object.
type Client struct {
	baseURL    string
	headers    http.Header
	httpc      *http.Client
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

func NewClient(baseURL string, headers http.Header, maxRetries int, backoff, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    headers,
		httpc:      &http.Client{},
		maxRetries: maxRetries,
		backoff:    backoff,
		timeout:    timeout,
		logger:     logger,
	}
}

type askRequest struct {
	Query      string         `json:"query"`
	RequestID  string         `json:"request_id"`
	ChatThread []chat.Message `json:"chatThread"`
	Config     map[string]any `json:"config"`
}

// Ask submits a question and returns the aggregated answer. On failure it
// waits backoff*attempt and tries again, up to the retry budget; the final
// failure is propagated inside an ExhaustedRetriesError, never swallowed.
func (c *Client) Ask(ctx context.Context, question string, opts Options) (Answer, error) {
	body, err := json.Marshal(askRequest{
		Query:      question,
		RequestID:  uuid.NewString(),
		ChatThread: opts.History,
		Config: map[string]any{
			"chunk_count":         opts.ChunkCount,
			"ranking_mode":        opts.RankingMode,
			"streaming":           opts.Streaming,
			"use_knowledge_agent": opts.KnowledgeAgent,
		},
	})
	if err != nil {
		return Answer{}, fmt.Errorf("marshal request: %w", err)
	}

	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff * time.Duration(attempt-1)
			c.logger.Warn("retrying backend call", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return Answer{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		answer, err := c.attempt(ctx, body)
		if err == nil {
			return answer, nil
		}

		var perr *ProtocolError
		if errors.As(err, &perr) {
			return Answer{}, err
		}
		if ctx.Err() != nil {
			return Answer{}, err
		}
		lastErr = err
	}

	return Answer{}, &ExhaustedRetriesError{Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, body []byte) (Answer, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vv := range c.headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Answer{}, classifyAttempt(actx, ctx, fmt.Errorf("backend call: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Answer{}, fmt.Errorf("backend status %d", resp.StatusCode)
	}

	var answer Answer
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		answer, err = c.aggregateStream(resp.Body)
	} else {
		answer, err = c.parsePlain(resp.Body)
	}
	if err != nil {
		return Answer{}, classifyAttempt(actx, ctx, err)
	}
	return answer, nil
}

// classifyAttempt separates deadline expiry from plain transport failure.
// The deadline fires as a connect error before headers arrive, but as a
// body read error after them, so every failed attempt is checked against
// the attempt context rather than the error text. A parent-context expiry
// is the caller's deadline, not ours, and passes through unclassified.
func classifyAttempt(actx, ctx context.Context, err error) error {
	if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", stream.ErrTimeout, err)
	}
	return err
}

// aggregateStream folds a streamed response into one answer: fragments
// concatenate in arrival order, the last complete citation event replaces
// any earlier set, and a wire error fails the attempt.
func (c *Client) aggregateStream(body io.Reader) (Answer, error) {
	reader := stream.NewFrameReader(body)
	var sb strings.Builder
	var citations []chat.CitationRecord
	sawFrame := false

	for {
		frame, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				if !sawFrame {
					return Answer{}, &ProtocolError{Reason: "stream response with no readable body"}
				}
				return Answer{Text: sb.String(), Citations: citations}, nil
			}
			return Answer{}, fmt.Errorf("read stream: %w", err)
		}
		sawFrame = true

		ev, err := stream.Decode(frame)
		if err != nil {
			// One bad frame does not fail the aggregation.
			c.logger.Warn("skipping malformed stream frame", "error", err)
			continue
		}

		switch ev.Kind {
		case stream.KindAnswer:
			sb.WriteString(ev.Answer.Fragment)
		case stream.KindCitation:
			citations = ev.Citations.Records
		case stream.KindError:
			return Answer{}, fmt.Errorf("backend error: %s", ev.Err.Message)
		case stream.KindEnd:
			return Answer{Text: sb.String(), Citations: citations}, nil
		}
	}
}

type plainResponse struct {
	Answer    string `json:"answer"`
	Citations struct {
		Text  []chat.CitationRecord `json:"text"`
		Image []chat.CitationRecord `json:"image"`
	} `json:"citations"`
}

// parsePlain consumes a non-streamed JSON body and uses its fields
// directly.
func (c *Client) parsePlain(body io.Reader) (Answer, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return Answer{}, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Answer{}, &ProtocolError{Reason: "empty response body"}
	}

	var pr plainResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return Answer{}, fmt.Errorf("parse response: %w", err)
	}

	records := make([]chat.CitationRecord, 0, len(pr.Citations.Text)+len(pr.Citations.Image))
	records = append(records, pr.Citations.Text...)
	for _, img := range pr.Citations.Image {
		img.IsImage = true
		records = append(records, img)
	}
	if len(records) == 0 {
		records = nil
	}
	return Answer{Text: pr.Answer, Citations: records}, nil
}
