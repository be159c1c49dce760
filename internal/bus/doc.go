// Package bus abstracts the message broker behind a small Conn interface.
//
// The agent and server runtimes never import the NATS client directly; they
// take a Conn, which gives them publish, subscribe, and request/reply with
// headers, plus three sentinel errors (ErrNoResponders, ErrTimeout,
// ErrClosed) to classify failures with errors.Is. Connect returns the NATS
// implementation; NewMockConn returns an in-memory one that routes traffic
// between subscribers inside a test process, including the request/reply
// inbox dance.
package bus
