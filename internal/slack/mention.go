package slack

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MentionEvent is the structure received from the slack-forwarder via
// NATS when the bot is mentioned. EventID identifies one delivery for
// dedupe: the platform redelivers events it considers unacknowledged.
type MentionEvent struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	ThreadTS  string `json:"thread_ts"`
	MessageTS string `json:"message_ts"`
	Text      string `json:"text"`
}

var botMentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// ParseMentionEvent parses a forwarder payload into a MentionEvent. The
// forwarder wraps platform fields in a metadata map.
func ParseMentionEvent(data []byte) (*MentionEvent, error) {
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse mention wrapper: %w", err)
	}

	evt := &MentionEvent{
		EventID:   wrapper.Metadata["event_id"],
		UserID:    wrapper.Metadata["user_id"],
		Channel:   wrapper.Metadata["channel_id"],
		ThreadTS:  wrapper.Metadata["thread_ts"],
		MessageTS: wrapper.Metadata["message_ts"],
		Text:      wrapper.Metadata["text"],
	}
	if evt.EventID == "" {
		return nil, fmt.Errorf("mention event missing event_id")
	}
	return evt, nil
}

// Question strips the bot mention token and surrounding whitespace from
// the message text, leaving the user's question.
func (e *MentionEvent) Question() string {
	return strings.TrimSpace(botMentionPattern.ReplaceAllString(e.Text, ""))
}

// ReplyThread returns the timestamp replies should thread under: the
// original thread when the mention was already inside one.
func (e *MentionEvent) ReplyThread() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.MessageTS
}
