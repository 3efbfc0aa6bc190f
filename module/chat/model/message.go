package model

// ContentType is the payload kind carried by a message.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeImage ContentType = "IMAGE"
	ContentTypeVideo ContentType = "VIDEO"
)

// Message is the canonical persisted form of a chat message.
//
// ID is assigned by the persistence engine at persist time, never by the
// client. Late is computed once at persist time by comparing Ts against the
// maximum Ts previously seen for the room; it is never recomputed afterwards.
type Message struct {
	ID      string      `json:"id"`
	Ts      int64       `json:"ts"`
	Read    bool        `json:"read"`
	Late    bool        `json:"late"`
	Channel string      `json:"channel"` // recipient identity
	From    string      `json:"from"`    // sender identity
	Content string      `json:"content"`
	Type    ContentType `json:"type"`
}

// Draft is the client-supplied portion of a message before persistence.
type Draft struct {
	Channel string      `json:"channel"`
	Ts      int64       `json:"ts"`
	Content string      `json:"content"`
	Type    ContentType `json:"type"`
}
