// ABOUTME: In-memory Conn implementation for tests.
// ABOUTME: Routes publishes to subscribers, services request/reply inboxes, and records traffic.

package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockConn is an in-memory bus for tests. Publishes fan out to every exact
// subscriber of the subject, requests are answered by subscribers replying to
// a synthetic inbox, and a request against a subject with no subscribers
// fails with ErrNoResponders, mirroring the real broker. Request outcomes can
// also be scripted ahead of time with ScriptRequest.
type MockConn struct {
	mu       sync.Mutex
	subs     map[string][]*mockSubscription
	inboxes  map[string]chan *Message
	pubs     []*Message
	scripted []scriptedReply
	inboxSeq int
	closed   bool
}

type scriptedReply struct {
	resp *Message
	err  error
}

// NewMockConn returns an empty in-memory bus.
func NewMockConn() *MockConn {
	return &MockConn{
		subs:    make(map[string][]*mockSubscription),
		inboxes: make(map[string]chan *Message),
	}
}

// ScriptRequest queues a canned outcome for the next Request call. Scripted
// outcomes are consumed in order before any subscriber routing happens.
func (m *MockConn) ScriptRequest(resp *Message, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, scriptedReply{resp: resp, err: err})
}

// Publish records the message and delivers it to subscribers and pending
// request inboxes.
func (m *MockConn) Publish(subject string, data []byte) error {
	msg := &Message{Subject: subject, Data: append([]byte(nil), data...)}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pubs = append(m.pubs, msg)
	m.mu.Unlock()
	m.route(msg)
	return nil
}

// Deliver injects a message as if a remote peer published it. Unlike Publish
// it is not recorded, so PublishedTo only ever reflects the code under test.
func (m *MockConn) Deliver(msg *Message) {
	m.route(msg)
}

func (m *MockConn) route(msg *Message) {
	m.mu.Lock()
	if ch, ok := m.inboxes[msg.Subject]; ok {
		delete(m.inboxes, msg.Subject)
		m.mu.Unlock()
		ch <- copyMessage(msg)
		return
	}
	targets := append([]*mockSubscription(nil), m.subs[msg.Subject]...)
	m.mu.Unlock()
	for _, sub := range targets {
		sub.deliver(copyMessage(msg))
	}
}

func (m *MockConn) Subscribe(subject string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	sub := &mockSubscription{conn: m, subject: subject, ch: make(chan *Message, 64)}
	m.subs[subject] = append(m.subs[subject], sub)
	return sub, nil
}

func (m *MockConn) Request(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if len(m.scripted) > 0 {
		next := m.scripted[0]
		m.scripted = m.scripted[1:]
		m.mu.Unlock()
		return next.resp, next.err
	}
	if len(m.subs[msg.Subject]) == 0 {
		m.mu.Unlock()
		return nil, ErrNoResponders
	}
	m.inboxSeq++
	inbox := fmt.Sprintf("_INBOX.%d", m.inboxSeq)
	replyCh := make(chan *Message, 1)
	m.inboxes[inbox] = replyCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inboxes, inbox)
		m.mu.Unlock()
	}()

	delivery := copyMessage(msg)
	delivery.Reply = inbox
	m.route(delivery)

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribers reports how many subscriptions are active on subject. Tests use
// it to wait for the code under test to finish subscribing before injecting
// traffic.
func (m *MockConn) Subscribers(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[subject])
}

// PublishedTo returns every message the code under test published to subject,
// oldest first.
func (m *MockConn) PublishedTo(subject string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for _, msg := range m.pubs {
		if msg.Subject == subject {
			out = append(out, copyMessage(msg))
		}
	}
	return out
}

func (m *MockConn) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var all []*mockSubscription
	for _, subs := range m.subs {
		all = append(all, subs...)
	}
	m.subs = make(map[string][]*mockSubscription)
	m.mu.Unlock()
	for _, sub := range all {
		sub.close()
	}
}

type mockSubscription struct {
	conn    *MockConn
	subject string

	mu     sync.Mutex
	ch     chan *Message
	closed bool
}

func (s *mockSubscription) deliver(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// Buffer full; drop like a slow consumer would.
	}
}

func (s *mockSubscription) Next(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mockSubscription) Unsubscribe() error {
	s.conn.mu.Lock()
	subs := s.conn.subs[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.conn.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.conn.mu.Unlock()
	s.close()
	return nil
}

func (s *mockSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Verify MockConn implements Conn at compile time.
var _ Conn = (*MockConn)(nil)

func copyMessage(msg *Message) *Message {
	out := &Message{Subject: msg.Subject, Reply: msg.Reply, Data: append([]byte(nil), msg.Data...)}
	if msg.Header != nil {
		out.Header = make(map[string]string, len(msg.Header))
		for k, v := range msg.Header {
			out.Header[k] = v
		}
	}
	return out
}
