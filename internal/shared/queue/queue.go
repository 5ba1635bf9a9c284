package queue

// Message is a queue message. LockID must identify the entity the message
// mutates: consumers take a distributed lock on it to serialize processing.
type Message interface {
	LockID() string
}
