package chat

// Role identifies who produced a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// EntryKind identifies the payload carried by a ConversationEntry.
type EntryKind string

const (
	EntryUserMessage EntryKind = "user_message"
	EntryAnswer      EntryKind = "answer"
	EntryInfo        EntryKind = "info"
	EntryError       EntryKind = "error"
)

// CitationRecord is a single retrievable source referenced by answer text.
// Records are immutable after creation: a later citation event replaces the
// whole set on the owning entry, never patches individual records.
type CitationRecord struct {
	ContentID        string `json:"content_id"`
	Title            string `json:"title"`
	Text             string `json:"text,omitempty"`
	IsImage          bool   `json:"is_image,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	PageNumber       int    `json:"page_number,omitempty"`
	BoundingPolygons string `json:"bounding_polygons,omitempty"`
}

// Message is one prior exchange half carried as context in a follow-up
// request. Only role and content cross the wire; entry metadata does not.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationEntry is one unit of displayable conversation state.
//
// RequestID groups entries produced by one user turn and is immutable once
// set. MessageID, when present, is the server-assigned identity used for
// idempotent replacement: a later event with the same MessageID replaces
// the entry rather than duplicating it.
type ConversationEntry struct {
	RequestID string
	MessageID string
	Kind      EntryKind
	Role      Role

	// Content is the kind-specific text payload: the query for a user
	// message, the accumulated answer for an answer entry, the message
	// for info and error entries. Answer content grows monotonically by
	// append while the request streams.
	Content string

	// Citations is populated on answer entries only. The renderer joins
	// answer text and its sources atomically from the same entry.
	Citations []CitationRecord
}
