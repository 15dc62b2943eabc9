package stream

import (
	"encoding/json"
	"fmt"

	"github.com/akshata29/aisearchmm-sub000/internal/chat"
)

// Kind discriminates decoded stream events.
type Kind string

const (
	KindAnswer         Kind = "answer"
	KindCitation       Kind = "citation"
	KindProcessingStep Kind = "processing_step"
	KindError          Kind = "error"
	KindEnd            Kind = "[END]"
	KindUnknown        Kind = "unknown"
)

// AnswerPayload is an incremental answer fragment. An empty fragment is
// valid and a no-op for consumers.
type AnswerPayload struct {
	RequestID string
	MessageID string
	Role      string
	Fragment  string
}

// CitationPayload carries the text and image citation records attached to
// one request's answer. A later citation event replaces the whole set.
type CitationPayload struct {
	RequestID string
	Records   []chat.CitationRecord
}

// ProcessingStep is a purely informational progress marker.
type ProcessingStep struct {
	RequestID string
	Step      string
}

// ErrorPayload is a server- or frame-level error carried as data. Decode
// reports whether the payload was synthesized from an unparseable frame;
// frame-level failures do not terminate the owning request.
type ErrorPayload struct {
	Message string
	Decode  bool
}

// Event is the tagged union produced by Decode. Exactly one payload field
// matching Kind is set; unknown event names map to KindUnknown with the
// raw data preserved.
type Event struct {
	Kind      Kind
	Answer    *AnswerPayload
	Citations *CitationPayload
	Step      *ProcessingStep
	Err       *ErrorPayload
	Raw       string
}

// DecodeError reports a frame whose data could not be parsed for its kind.
// It carries the originating kind and the raw text; the caller decides
// whether the failure is fatal.
type DecodeError struct {
	Kind Kind
	Raw  string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type answerWire struct {
	RequestID     string `json:"request_id"`
	MessageID     string `json:"message_id"`
	Role          string `json:"role"`
	AnswerPartial struct {
		Answer string `json:"answer"`
	} `json:"answerPartial"`
}

type citationWire struct {
	RequestID string                `json:"request_id"`
	Text      []chat.CitationRecord `json:"text"`
	Image     []chat.CitationRecord `json:"image"`
}

type stepWire struct {
	RequestID string `json:"request_id"`
	Step      string `json:"step"`
	Message   string `json:"message"`
}

type errorWire struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Decode parses a raw frame into a typed event. It is pure data
// transformation with no side effects and is safe to call from any
// goroutine.
func Decode(f Frame) (Event, error) {
	switch Kind(f.Event) {
	case KindEnd:
		return Event{Kind: KindEnd}, nil

	case KindAnswer:
		var w answerWire
		if err := json.Unmarshal([]byte(f.Data), &w); err != nil {
			return Event{}, &DecodeError{Kind: KindAnswer, Raw: f.Data, Err: err}
		}
		return Event{Kind: KindAnswer, Answer: &AnswerPayload{
			RequestID: w.RequestID,
			MessageID: w.MessageID,
			Role:      w.Role,
			Fragment:  w.AnswerPartial.Answer,
		}}, nil

	case KindCitation:
		var w citationWire
		if err := json.Unmarshal([]byte(f.Data), &w); err != nil {
			return Event{}, &DecodeError{Kind: KindCitation, Raw: f.Data, Err: err}
		}
		records := make([]chat.CitationRecord, 0, len(w.Text)+len(w.Image))
		records = append(records, w.Text...)
		for _, img := range w.Image {
			img.IsImage = true
			records = append(records, img)
		}
		return Event{Kind: KindCitation, Citations: &CitationPayload{
			RequestID: w.RequestID,
			Records:   records,
		}}, nil

	case KindProcessingStep:
		var w stepWire
		if err := json.Unmarshal([]byte(f.Data), &w); err != nil {
			return Event{}, &DecodeError{Kind: KindProcessingStep, Raw: f.Data, Err: err}
		}
		step := w.Step
		if step == "" {
			step = w.Message
		}
		return Event{Kind: KindProcessingStep, Step: &ProcessingStep{
			RequestID: w.RequestID,
			Step:      step,
		}}, nil

	case KindError:
		var w errorWire
		if err := json.Unmarshal([]byte(f.Data), &w); err != nil {
			return Event{}, &DecodeError{Kind: KindError, Raw: f.Data, Err: err}
		}
		msg := w.Message
		if msg == "" {
			msg = w.Error
		}
		return Event{Kind: KindError, Err: &ErrorPayload{Message: msg}}, nil

	default:
		// Unknown kinds are forward-compatible, not fatal.
		return Event{Kind: KindUnknown, Raw: f.Data}, nil
	}
}
