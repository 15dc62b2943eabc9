package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akshata29/aisearchmm-sub000/internal/chat"
)

func TestFormatAnswer_NumbersAndSources(t *testing.T) {
	citations := []chat.CitationRecord{
		{ContentID: "report.pdf", Title: "Annual Report"},
		{ContentID: "memo.pdf", Title: "Memo"},
	}

	text, sources := FormatAnswer("Revenue grew [report.pdf] while costs fell [memo.pdf] ([report.pdf]).", citations)

	if text != "Revenue grew [1] while costs fell [2] ([1])." {
		t.Errorf("unexpected text: %q", text)
	}
	if len(sources) != 2 || sources[0] != "[1] Annual Report" || sources[1] != "[2] Memo" {
		t.Errorf("unexpected sources: %v", sources)
	}
}

func TestFormatAnswer_UnresolvedTokenKept(t *testing.T) {
	text, sources := FormatAnswer("See [unknown.pdf].", nil)

	if text != "See [unknown.pdf]." {
		t.Errorf("unresolved tokens must not be dropped, got %q", text)
	}
	if len(sources) != 0 {
		t.Errorf("expected no sources, got %v", sources)
	}
}

func TestPostAnswer_SendsBlocksAndAuth(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		fmt.Fprint(w, `{"ok":true,"ts":"123.456"}`)
	}))
	defer srv.Close()

	p := NewPoster("xoxb-test", srv.URL, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts, err := p.PostAnswer(context.Background(), "C1", "111.222", "Answer [c1].", []chat.CitationRecord{{ContentID: "c1", Title: "Doc"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "123.456" {
		t.Errorf("unexpected ts %q", ts)
	}
	if gotAuth != "Bearer xoxb-test" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotPayload["channel"] != "C1" || gotPayload["thread_ts"] != "111.222" {
		t.Errorf("unexpected payload: %v", gotPayload)
	}
	if !strings.Contains(gotPayload["text"].(string), "Answer [1].") {
		t.Errorf("expected numbered reference in text, got %v", gotPayload["text"])
	}
	if _, ok := gotPayload["blocks"]; !ok {
		t.Error("expected blocks in payload")
	}
}

func TestPostAnswer_SlackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer srv.Close()

	p := NewPoster("xoxb-test", srv.URL, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := p.PostAnswer(context.Background(), "C1", "", "text", nil)
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("expected slack error surfaced, got %v", err)
	}
}

func TestParseMentionEvent(t *testing.T) {
	data := []byte(`{"metadata":{"event_id":"Ev1","user_id":"U1","channel_id":"C1","message_ts":"1.2","text":"<@B99> what changed in Q3?"}}`)

	evt, err := ParseMentionEvent(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.EventID != "Ev1" || evt.Channel != "C1" {
		t.Errorf("unexpected event: %+v", evt)
	}
	if q := evt.Question(); q != "what changed in Q3?" {
		t.Errorf("expected mention stripped, got %q", q)
	}
	if evt.ReplyThread() != "1.2" {
		t.Errorf("expected reply under the message itself, got %q", evt.ReplyThread())
	}
}

func TestParseMentionEvent_MissingEventID(t *testing.T) {
	if _, err := ParseMentionEvent([]byte(`{"metadata":{"text":"hi"}}`)); err == nil {
		t.Error("expected error for missing event_id")
	}
}

func TestMentionEvent_ReplyThreadPrefersExistingThread(t *testing.T) {
	evt := &MentionEvent{ThreadTS: "9.9", MessageTS: "1.2"}
	if evt.ReplyThread() != "9.9" {
		t.Errorf("expected existing thread, got %q", evt.ReplyThread())
	}
}
