package elemer

import "fmt"

// MessageKind is the severity of a Message.
type MessageKind uint8

const (
	MessageInfo MessageKind = iota
	MessageWarning
	MessageError
)

func (k MessageKind) String() string {
	switch k {
	case MessageInfo:
		return "info"
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is a user facing report of a link or protocol event: an open
// failure, a checksum error, a reply timeout.
type Message struct {
	Kind MessageKind
	Text string
	Err  error
}

func (m Message) String() string {
	if m.Err != nil {
		return fmt.Sprintf("%s: %v", m.Text, m.Err)
	}
	return m.Text
}

// MessageHandler receives the messages of a session. It is called from the
// link goroutine as well as from callers and must not block.
type MessageHandler func(Message)
