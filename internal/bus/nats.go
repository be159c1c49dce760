// ABOUTME: NATS-backed implementation of the bus Conn interface.
// ABOUTME: Maps nats.go error values onto the package sentinels.

package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Connect dials a NATS server and wraps the connection. The name shows up in
// server-side monitoring.
func Connect(url, name string) (Conn, error) {
	nc, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &natsConn{nc: nc}, nil
}

type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) Publish(subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return mapNATSErr(err)
	}
	return nil
}

func (c *natsConn) Subscribe(subject string) (Subscription, error) {
	sub, err := c.nc.SubscribeSync(subject)
	if err != nil {
		return nil, mapNATSErr(err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (c *natsConn) Request(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error) {
	nm := nats.NewMsg(msg.Subject)
	nm.Data = msg.Data
	for k, v := range msg.Header {
		nm.Header.Set(k, v)
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reply, err := c.nc.RequestMsgWithContext(rctx, nm)
	if err != nil {
		// A deadline here is our request timeout, not the caller's context.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrTimeout
		}
		return nil, mapNATSErr(err)
	}
	return fromNATSMsg(reply), nil
}

func (c *natsConn) Close() {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Next(ctx context.Context) (*Message, error) {
	m, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, mapNATSErr(err)
	}
	return fromNATSMsg(m), nil
}

func (s *natsSubscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrBadSubscription) {
		return mapNATSErr(err)
	}
	return nil
}

func fromNATSMsg(m *nats.Msg) *Message {
	msg := &Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data}
	if len(m.Header) > 0 {
		msg.Header = make(map[string]string, len(m.Header))
		for k := range m.Header {
			msg.Header[k] = m.Header.Get(k)
		}
	}
	return msg
}

func mapNATSErr(err error) error {
	switch {
	case errors.Is(err, nats.ErrNoResponders):
		return ErrNoResponders
	case errors.Is(err, nats.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrBadSubscription):
		return ErrClosed
	default:
		return err
	}
}

// Ensure natsConn implements Conn at compile time.
var _ Conn = (*natsConn)(nil)
