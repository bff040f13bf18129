package transport

import (
	"fmt"
	"unicode/utf8"
)

// MessageType tells text frames from binary frames.
type MessageType int

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message is an opaque payload. livews never inspects Data.
type Message struct {
	Type MessageType
	Data []byte
}

func Text(s string) Message {
	return Message{Type: TextMessage, Data: []byte(s)}
}

func Binary(b []byte) Message {
	return Message{Type: BinaryMessage, Data: b}
}

func (m Message) IsText() bool {
	return m.Type == TextMessage
}

// Size is the character count for text messages and the byte count for
// binary messages.
func (m Message) Size() int {
	if m.IsText() {
		return utf8.RuneCount(m.Data)
	}
	return len(m.Data)
}

func (m Message) String() string {
	if m.IsText() {
		return string(m.Data)
	}
	return fmt.Sprintf("<binary %d bytes>", len(m.Data))
}
