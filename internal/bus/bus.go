// ABOUTME: Narrow pub/sub interface the runtimes depend on instead of a concrete broker client.
// ABOUTME: Defines Message, Subscription, Conn, and the sentinel errors callers classify with.

package bus

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the conditions callers branch on. Adapters map their
// broker's errors onto these; everything else passes through wrapped.
var (
	// ErrNoResponders means a request found no subscriber on its subject.
	ErrNoResponders = errors.New("no responders available for request")
	// ErrTimeout means a request got no reply in time.
	ErrTimeout = errors.New("request timed out")
	// ErrClosed means the connection or subscription has been shut down.
	ErrClosed = errors.New("connection closed")
)

// Message is one unit of bus traffic.
type Message struct {
	Subject string
	// Reply is the inbox to answer on; set on requests, empty on plain publishes.
	Reply  string
	Header map[string]string
	Data   []byte
}

// Subscription is an ordered stream of messages for one subject.
type Subscription interface {
	// Next blocks until a message arrives, ctx is done, or the subscription
	// is closed (ErrClosed).
	Next(ctx context.Context) (*Message, error)
	// Unsubscribe stops delivery; pending and future Next calls return ErrClosed.
	Unsubscribe() error
}

// Conn is the slice of a pub/sub system this program needs: fire-and-forget
// publishes, subject subscriptions, and request/reply with headers.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string) (Subscription, error)
	// Request publishes msg with a fresh reply inbox and waits up to timeout
	// for the answer. ErrNoResponders when nobody subscribes to the subject.
	Request(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error)
	// Close drains in-flight traffic and releases the connection.
	Close()
}
