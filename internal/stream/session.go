package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTimeout marks a session whose deadline fired before the stream
// completed. Callers render different guidance for timeouts than for
// transport failures, so the two must stay distinguishable.
var ErrTimeout = errors.New("stream deadline exceeded")

// Outcome is the single terminal result of a session: nil Err for normal
// completion, ErrTimeout for deadline expiry, context.Canceled for an
// explicit cancel, anything else for a transport failure.
type Outcome struct {
	Err error
}

// Sink receives decoded events in arrival order followed by exactly one
// terminal outcome. Calls are made from the session's reader goroutine.
type Sink interface {
	OnEvent(Event)
	OnTerminal(Outcome)
}

// Client opens stream sessions against the answer backend. The underlying
// http.Client carries no request timeout: streaming calls are bounded per
// session by the caller-supplied deadline instead.
type Client struct {
	httpc  *http.Client
	logger *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpc:  &http.Client{},
		logger: logger,
	}
}

// Session is one in-flight streaming request. It is owned by the caller
// that opened it and never outlives the request: success, error, timeout,
// and cancellation all release it.
type Session struct {
	cancel     context.CancelFunc
	cancelOnce sync.Once
	termOnce   sync.Once
	finished   atomic.Bool
	timedOut   atomic.Bool
	sink       Sink
	logger     *slog.Logger
}

// Open starts a streaming POST to endpoint and consumes the SSE response
// in a goroutine, forwarding decoded events to sink. The deadline bounds
// the whole session; on expiry the network operation is aborted and the
// sink receives a timeout outcome. Open returns as soon as the session is
// started — it does not wait for the connection.
func (c *Client) Open(ctx context.Context, endpoint string, body []byte, headers http.Header, deadline time.Duration, sink Sink) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{cancel: cancel, sink: sink, logger: c.logger}

	// One timer per session. Firing cancels the network operation and is
	// remembered so the failure classifies as timeout, not cancel.
	timer := time.AfterFunc(deadline, func() {
		s.timedOut.Store(true)
		cancel()
	})

	go func() {
		defer timer.Stop()
		defer cancel()
		s.run(sctx, c.httpc, endpoint, body, headers)
	}()

	return s
}

// Cancel aborts the session's network operation. It is idempotent:
// cancelling an already-completed or already-cancelled session has no
// effect.
func (s *Session) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

func (s *Session) run(ctx context.Context, httpc *http.Client, endpoint string, body []byte, headers http.Header) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		s.terminate(fmt.Errorf("create request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, vv := range headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	resp, err := httpc.Do(req)
	if err != nil {
		s.terminate(s.classify(ctx, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		s.terminate(fmt.Errorf("backend status %d", resp.StatusCode))
		return
	}

	reader := NewFrameReader(resp.Body)
	for {
		frame, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				// Stream closed without [END]; treat as completion.
				s.terminate(nil)
				return
			}
			s.terminate(s.classify(ctx, err))
			return
		}

		ev, err := Decode(frame)
		if err != nil {
			// A single malformed frame must not stall the stream: it is
			// forwarded as an error-kind event and consumption continues.
			s.deliver(Event{Kind: KindError, Err: &ErrorPayload{
				Message: err.Error(),
				Decode:  true,
			}})
			continue
		}

		if ev.Kind == KindEnd {
			s.terminate(nil)
			return
		}
		s.deliver(ev)
	}
}

// deliver forwards an event unless the session already reached a terminal
// state. A late frame racing a fired timeout is dropped here.
func (s *Session) deliver(ev Event) {
	if s.finished.Load() {
		return
	}
	s.sink.OnEvent(ev)
}

// terminate delivers the single terminal outcome. The deadline timer is
// stopped by the reader goroutine's defer, so a subsequent firing is a
// no-op; equally, a late [END] after a timeout cannot re-enter here.
func (s *Session) terminate(err error) {
	s.termOnce.Do(func() {
		s.finished.Store(true)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("stream session failed", "error", err)
		}
		s.sink.OnTerminal(Outcome{Err: err})
	})
}

// classify separates deadline expiry from caller cancellation and plain
// transport failure.
func (s *Session) classify(ctx context.Context, err error) error {
	if s.timedOut.Load() {
		return fmt.Errorf("%w after %v", ErrTimeout, err)
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
