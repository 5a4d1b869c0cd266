package chat

// Log is an immutable, ordered chat transcript. Append returns a new Log and
// never writes into storage visible through an older value, so a Log handed
// to a reader can never change underneath it.
type Log struct {
	messages []Message
}

// NewLog builds a log from the given messages in order.
func NewLog(messages ...Message) Log {
	return Log{messages: append([]Message(nil), messages...)}
}

// Append returns a new log with m added at the end.
func (l Log) Append(m Message) Log {
	next := make([]Message, len(l.messages), len(l.messages)+1)
	copy(next, l.messages)
	return Log{messages: append(next, m)}
}

// Len returns the number of messages.
func (l Log) Len() int {
	return len(l.messages)
}

// Messages returns a copy of the transcript.
func (l Log) Messages() []Message {
	return append([]Message(nil), l.messages...)
}

// Last returns the newest message, if any.
func (l Log) Last() (Message, bool) {
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Window returns up to the n newest messages. n <= 0 means the whole log.
func (l Log) Window(n int) []Message {
	if n <= 0 || n >= len(l.messages) {
		return l.Messages()
	}
	return append([]Message(nil), l.messages[len(l.messages)-n:]...)
}
