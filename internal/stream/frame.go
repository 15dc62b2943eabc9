package stream

import (
	"bufio"
	"bytes"
	"io"
)

// Frame is one (event, data) pair delivered over the SSE transport. Frames
// are consumed by Decode and not retained.
type Frame struct {
	Event string
	Data  string
}

// FrameReader parses server-sent-event frames from a response body.
type FrameReader struct {
	reader *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{reader: bufio.NewReader(r)}
}

// Next reads the next frame from the stream. A frame ends at a blank line;
// multiple data lines are joined with newlines. Returns io.EOF when the
// stream ends.
func (fr *FrameReader) Next() (Frame, error) {
	var event string
	var dataLines [][]byte

	for {
		line, err := fr.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && (len(dataLines) > 0 || event != "") {
				// Flush a final unterminated frame before EOF.
				return Frame{Event: event, Data: string(bytes.Join(dataLines, []byte("\n")))}, nil
			}
			return Frame{}, err
		}

		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if len(dataLines) > 0 || event != "" {
				return Frame{Event: event, Data: string(bytes.Join(dataLines, []byte("\n")))}, nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			event = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// id:, retry:, and comment lines are ignored.
	}
}
