package thread

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akshata29/aisearchmm-sub000/internal/chat"
	"github.com/akshata29/aisearchmm-sub000/internal/stream"
)

// User guidance differs between a deadline expiry and a plain failure, so
// the two must never share a message.
const (
	timeoutEntryText = "The answer is taking longer than expected and may need more time. Please try again."
	failureEntryText = "Something went wrong while answering. Please try again."
)

// Options is the per-submission configuration snapshot. Retrieval settings
// are forwarded to the backend verbatim; the history fields govern whether
// finished exchanges ride along as context on the next submission.
type Options struct {
	ChunkCount     int
	RankingMode    string
	Streaming      bool
	KnowledgeAgent bool
	UseHistory     bool
	HistoryCap     int
}

// SessionHandle is the cancellable side of an open stream session.
type SessionHandle interface {
	Cancel()
}

// SessionOpener starts one streaming request against the backend.
type SessionOpener interface {
	Open(ctx context.Context, endpoint string, body []byte, headers http.Header, deadline time.Duration, sink stream.Sink) SessionHandle
}

// StreamOpener adapts stream.Client to the SessionOpener interface.
type StreamOpener struct {
	Client *stream.Client
}

func (o StreamOpener) Open(ctx context.Context, endpoint string, body []byte, headers http.Header, deadline time.Duration, sink stream.Sink) SessionHandle {
	return o.Client.Open(ctx, endpoint, body, headers, deadline, sink)
}

type entryRec struct {
	reqSeq int
	seq    int
	entry  chat.ConversationEntry
}

// Reconciler folds stream events into ordered per-conversation state. It
// owns the entry list exclusively: entries change only in response to
// decoded events or explicit caller actions (Submit, Cancel, Reset).
type Reconciler struct {
	opener   SessionOpener
	endpoint string
	headers  http.Header
	deadline time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	records  []*entryRec
	reqSeq   map[string]int
	nextReq  int
	nextSeq  int
	steps    map[string][]string
	inflight map[string]bool
	frozen   map[string]bool
	handles  map[string]SessionHandle
	current  string
	history  []chat.Message
}

// New builds a reconciler for one conversation. The headers are opaque
// identifying values attached to every request untouched.
func New(opener SessionOpener, endpoint string, headers http.Header, deadline time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		opener:   opener,
		endpoint: endpoint,
		headers:  headers,
		deadline: deadline,
		logger:   logger,
		reqSeq:   make(map[string]int),
		steps:    make(map[string][]string),
		inflight: make(map[string]bool),
		frozen:   make(map[string]bool),
		handles:  make(map[string]SessionHandle),
	}
}

type requestBody struct {
	Query      string         `json:"query"`
	RequestID  string         `json:"request_id"`
	ChatThread []chat.Message `json:"chatThread"`
	Config     map[string]any `json:"config"`
}

// Submit starts a new request for the conversation and returns its request
// id. It is fire-and-forget: progress and failures are observed through
// Entries. Submitting while an earlier request is still streaming is
// allowed; both stay tracked by request id, and InFlight reflects the most
// recent submission only.
func (r *Reconciler) Submit(ctx context.Context, query string, opts Options) string {
	requestID := uuid.NewString()

	r.mu.Lock()
	r.nextReq++
	r.reqSeq[requestID] = r.nextReq
	r.current = requestID
	r.inflight[requestID] = true
	r.appendLocked(requestID, chat.ConversationEntry{
		RequestID: requestID,
		Kind:      chat.EntryUserMessage,
		Role:      chat.RoleUser,
		Content:   query,
	})
	var thread []chat.Message
	if opts.UseHistory {
		thread = append(thread, r.history...)
	}
	r.mu.Unlock()

	body, err := json.Marshal(requestBody{
		Query:      query,
		RequestID:  requestID,
		ChatThread: thread,
		Config: map[string]any{
			"chunk_count":         opts.ChunkCount,
			"ranking_mode":        opts.RankingMode,
			"streaming":           opts.Streaming,
			"use_knowledge_agent": opts.KnowledgeAgent,
		},
	})
	if err != nil {
		r.finish(requestID, "", opts, err)
		return requestID
	}

	handle := r.opener.Open(ctx, r.endpoint, body, r.headers, r.deadline, &requestSink{
		r:         r,
		requestID: requestID,
		query:     query,
		opts:      opts,
	})

	r.mu.Lock()
	r.handles[requestID] = handle
	r.mu.Unlock()
	return requestID
}

// Cancel aborts the named request's session if it is still open.
func (r *Reconciler) Cancel(requestID string) {
	r.mu.Lock()
	handle := r.handles[requestID]
	r.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}
}

// Reset discards all conversation state. This is the only path that ever
// deletes entries.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handles {
		go h.Cancel()
	}
	r.records = nil
	r.reqSeq = make(map[string]int)
	r.steps = make(map[string][]string)
	r.inflight = make(map[string]bool)
	r.frozen = make(map[string]bool)
	r.handles = make(map[string]SessionHandle)
	r.current = ""
	r.history = nil
}

// Entries returns the conversation entries sorted by submission order,
// with each request's own internal order preserved regardless of how
// frames from concurrent requests interleaved.
func (r *Reconciler) Entries() []chat.ConversationEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := make([]*entryRec, len(r.records))
	copy(recs, r.records)
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].reqSeq != recs[j].reqSeq {
			return recs[i].reqSeq < recs[j].reqSeq
		}
		return recs[i].seq < recs[j].seq
	})
	out := make([]chat.ConversationEntry, len(recs))
	for i, rec := range recs {
		out[i] = rec.entry
	}
	return out
}

// InFlight reports whether the most recently submitted request is still
// streaming.
func (r *Reconciler) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight[r.current]
}

// Steps returns the diagnostic processing-step side channel for a request.
// Steps never appear in the entry list.
func (r *Reconciler) Steps(requestID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.steps[requestID]))
	copy(out, r.steps[requestID])
	return out
}

// History returns the exchanges eligible for inclusion in the next
// submission.
func (r *Reconciler) History() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.Message, len(r.history))
	copy(out, r.history)
	return out
}

// requestSink routes one session's events back into the reconciler.
type requestSink struct {
	r         *Reconciler
	requestID string
	query     string
	opts      Options
}

func (s *requestSink) OnEvent(ev stream.Event) {
	s.r.apply(s.requestID, ev)
}

func (s *requestSink) OnTerminal(o stream.Outcome) {
	s.r.finish(s.requestID, s.query, s.opts, o.Err)
}

func (r *Reconciler) apply(requestID string, ev stream.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case stream.KindAnswer:
		if r.frozen[requestID] {
			return
		}
		r.applyAnswerLocked(requestID, ev.Answer)

	case stream.KindCitation:
		if r.frozen[requestID] {
			return
		}
		rec := r.answerLocked(requestID)
		rec.entry.Citations = ev.Citations.Records

	case stream.KindProcessingStep:
		r.steps[requestID] = append(r.steps[requestID], ev.Step.Step)

	case stream.KindError:
		r.appendLocked(requestID, chat.ConversationEntry{
			RequestID: requestID,
			Kind:      chat.EntryError,
			Role:      chat.RoleAssistant,
			Content:   ev.Err.Message,
		})
		// A server error ends the request's answer; a frame-level decode
		// failure does not, the stream keeps going.
		if !ev.Err.Decode {
			r.frozen[requestID] = true
		}

	case stream.KindUnknown:
		r.logger.Debug("ignoring unrecognized stream event", "request_id", requestID)
	}
}

// applyAnswerLocked grows the request's answer. A fragment without identity
// always appends; the first message id seen becomes the entry's identity;
// a redelivered fragment with a known id replaces instead of duplicating.
func (r *Reconciler) applyAnswerLocked(requestID string, p *stream.AnswerPayload) {
	rec := r.answerLocked(requestID)
	switch {
	case p.MessageID == "":
		rec.entry.Content += p.Fragment
	case rec.entry.MessageID == p.MessageID:
		rec.entry.Content = p.Fragment
	default:
		rec.entry.MessageID = p.MessageID
		rec.entry.Content += p.Fragment
	}
}

// answerLocked finds the request's answer entry, creating it on first use.
func (r *Reconciler) answerLocked(requestID string) *entryRec {
	for _, rec := range r.records {
		if rec.entry.RequestID == requestID && rec.entry.Kind == chat.EntryAnswer {
			return rec
		}
	}
	return r.appendLocked(requestID, chat.ConversationEntry{
		RequestID: requestID,
		Kind:      chat.EntryAnswer,
		Role:      chat.RoleAssistant,
	})
}

func (r *Reconciler) appendLocked(requestID string, e chat.ConversationEntry) *entryRec {
	r.nextSeq++
	rec := &entryRec{reqSeq: r.reqSeq[requestID], seq: r.nextSeq, entry: e}
	r.records = append(r.records, rec)
	return rec
}

// finish records a request's terminal outcome: at most one error entry per
// distinguishable failure, and on success the exchange becomes eligible
// for history inclusion on the next submission.
func (r *Reconciler) finish(requestID, query string, opts Options, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inflight[requestID] = false
	delete(r.handles, requestID)

	if err != nil {
		if errors.Is(err, context.Canceled) || r.frozen[requestID] {
			r.frozen[requestID] = true
			return
		}
		text := failureEntryText
		if errors.Is(err, stream.ErrTimeout) {
			text = timeoutEntryText
		}
		r.appendLocked(requestID, chat.ConversationEntry{
			RequestID: requestID,
			Kind:      chat.EntryError,
			Role:      chat.RoleAssistant,
			Content:   text,
		})
		r.frozen[requestID] = true
		return
	}

	if r.frozen[requestID] {
		return
	}
	r.frozen[requestID] = true

	if opts.UseHistory {
		answer := ""
		for _, rec := range r.records {
			if rec.entry.RequestID == requestID && rec.entry.Kind == chat.EntryAnswer {
				answer = rec.entry.Content
				break
			}
		}
		r.history = append(r.history,
			chat.Message{Role: string(chat.RoleUser), Content: query},
			chat.Message{Role: string(chat.RoleAssistant), Content: answer},
		)
		if limit := opts.HistoryCap; limit > 0 && len(r.history) > limit*2 {
			r.history = r.history[len(r.history)-limit*2:]
		}
	}
}
