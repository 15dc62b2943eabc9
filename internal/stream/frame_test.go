package stream

import (
	"io"
	"strings"
	"testing"
)

func TestFrameReader_SingleFrame(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("event: answer\ndata: {\"a\":1}\n\n"))

	frame, err := fr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Event != "answer" {
		t.Errorf("expected event answer, got %q", frame.Event)
	}
	if frame.Data != `{"a":1}` {
		t.Errorf("unexpected data: %q", frame.Data)
	}

	if _, err := fr.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestFrameReader_MultipleFrames(t *testing.T) {
	input := "event: answer\ndata: one\n\nevent: citation\ndata: two\n\nevent: [END]\ndata:\n\n"
	fr := NewFrameReader(strings.NewReader(input))

	want := []Frame{
		{Event: "answer", Data: "one"},
		{Event: "citation", Data: "two"},
		{Event: "[END]", Data: ""},
	}
	for i, w := range want {
		frame, err := fr.Next()
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if frame != w {
			t.Errorf("frame %d: expected %+v, got %+v", i, w, frame)
		}
	}
}

func TestFrameReader_MultilineData(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("event: answer\ndata: line1\ndata: line2\n\n"))

	frame, err := fr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Data != "line1\nline2" {
		t.Errorf("expected joined data lines, got %q", frame.Data)
	}
}

func TestFrameReader_CRLFAndComments(t *testing.T) {
	fr := NewFrameReader(strings.NewReader(": keepalive\r\nid: 7\r\nevent: answer\r\ndata: x\r\n\r\n"))

	frame, err := fr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Event != "answer" || frame.Data != "x" {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestFrameReader_UnterminatedFinalFrame(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("event: answer\ndata: tail"))

	frame, err := fr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Event != "answer" || frame.Data != "tail" {
		t.Errorf("expected final frame flushed at EOF, got %+v", frame)
	}
	if _, err := fr.Next(); err != io.EOF {
		t.Errorf("expected EOF after flush, got %v", err)
	}
}
