// ABOUTME: Operator runtime: accepts registrations, tracks clients, and collects results.
// ABOUTME: Owns the registration, heartbeat, eviction, and per-client response listener loops.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/droverlabs/drover/internal/bus"
	"github.com/droverlabs/drover/internal/history"
	"github.com/droverlabs/drover/internal/protocol"
	"github.com/droverlabs/drover/internal/registry"
)

// commandPacing is the short pause after dispatching a command, so the
// asynchronous result usually renders before the next prompt. Cosmetic only.
const commandPacing = 100 * time.Millisecond

// Config carries the server's dependencies and settings. Conn is required;
// everything else has a default.
type Config struct {
	Conn bus.Conn

	// SubjectPrefix namespaces all bus subjects (default "rs-support").
	SubjectPrefix string

	// Registry tracks known clients (default: a fresh empty one).
	Registry *registry.Registry

	// History records operator activity; nil disables recording and the
	// history console verb.
	History *history.Store

	// ClientTTL evicts clients unseen for this long; zero disables eviction.
	ClientTTL time.Duration

	Logger *slog.Logger

	// Input and Output are the console streams (default stdin/stdout).
	Input  io.Reader
	Output io.Writer
}

// Server is the operator runtime.
type Server struct {
	conn     bus.Conn
	subjects protocol.Subjects
	registry *registry.Registry
	history  *history.Store
	ttl      time.Duration
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer

	// Test overrides; production values come from the constants.
	pacing        time.Duration
	sweepInterval time.Duration

	mu        sync.Mutex
	listeners map[string]*responseListener

	// printMu keeps multi-line console blocks from interleaving with
	// asynchronously rendered results.
	printMu sync.Mutex

	exitOnce sync.Once
	exitCh   chan struct{}

	wg sync.WaitGroup
}

// responseListener is one per-client subscription on the response subject.
type responseListener struct {
	clientID string
	sub      bus.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
}

// New validates cfg and builds a Server. The bus connection must already be
// established.
func New(cfg Config) (*Server, error) {
	if cfg.Conn == nil {
		return nil, errors.New("bus connection is required")
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	in := cfg.Input
	if in == nil {
		in = os.Stdin
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	sweep := cfg.ClientTTL / 4
	if sweep < time.Second {
		sweep = time.Second
	}

	return &Server{
		conn:          cfg.Conn,
		subjects:      protocol.NewSubjects(cfg.SubjectPrefix),
		registry:      reg,
		history:       cfg.History,
		ttl:           cfg.ClientTTL,
		logger:        logger.With("component", "server"),
		in:            in,
		out:           out,
		pacing:        commandPacing,
		sweepInterval: sweep,
		listeners:     make(map[string]*responseListener),
		exitCh:        make(chan struct{}),
	}, nil
}

// Run serves registrations, heartbeats, and the operator console until the
// exit verb, EOF on console input, or ctx cancellation. All loops are joined
// before it returns.
func (s *Server) Run(ctx context.Context) error {
	regSub, err := s.conn.Subscribe(s.subjects.Register())
	if err != nil {
		return fmt.Errorf("subscribing to registrations: %w", err)
	}
	hbSub, err := s.conn.Subscribe(s.subjects.Heartbeat())
	if err != nil {
		return fmt.Errorf("subscribing to heartbeats: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("operator ready, waiting for client registrations",
		"subject", s.subjects.Register(), "ttl", s.ttl)
	s.printHelp()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.registrationLoop(loopCtx, regSub)
	}()
	go func() {
		defer s.wg.Done()
		s.heartbeatLoop(loopCtx, hbSub)
	}()
	if s.ttl > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.evictionLoop(loopCtx)
		}()
	}

	// The console reads a blocking stream that cannot be interrupted
	// portably when it is the process stdin, so it runs outside the joined
	// group; exit and EOF both signal exitCh.
	go s.consoleLoop(loopCtx)

	select {
	case <-s.exitCh:
		s.logger.Info("exit requested, shutting down")
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	}

	cancel()
	if err := regSub.Unsubscribe(); err != nil {
		s.logger.Debug("unsubscribing registrations", "error", err)
	}
	if err := hbSub.Unsubscribe(); err != nil {
		s.logger.Debug("unsubscribing heartbeats", "error", err)
	}
	s.closeListeners()
	s.wg.Wait()
	return nil
}

// registrationLoop serves the shared registration subject.
func (s *Server) registrationLoop(ctx context.Context, sub bus.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, bus.ErrClosed) {
				s.logger.Error("receiving registration", "error", err)
			}
			return
		}
		s.handleRegistration(ctx, msg)
	}
}

// handleRegistration records the client and ensures its response listener.
// The client_id header is authoritative; the reply inbox is the fallback for
// clients that omit it.
func (s *Server) handleRegistration(ctx context.Context, msg *bus.Message) {
	info, err := protocol.DecodeSystemInfo(msg.Data)
	if err != nil {
		s.logger.Warn("dropping undecodable registration", "error", err)
		return
	}

	clientID := msg.Header[protocol.HeaderClientID]
	if clientID == "" {
		clientID = msg.Reply
	}
	if clientID == "" {
		s.logger.Warn("dropping registration with no identity", "hostname", info.Hostname)
		return
	}

	replaced := s.registry.Upsert(clientID, info)
	if replaced {
		s.logger.Info("client re-registered", "client_id", clientID, "hostname", info.Hostname)
	} else {
		s.logger.Info("client connected",
			"client_id", clientID, "hostname", info.Hostname, "os", info.OSType,
			"total_clients", s.registry.Len())
	}
	s.record(ctx, clientID, history.KindRegistered,
		fmt.Sprintf("%s (%s / %s)", info.Hostname, info.Username, info.OSType))

	if msg.Reply != "" {
		if err := s.conn.Publish(msg.Reply, []byte(protocol.RegistrationAck)); err != nil {
			s.logger.Warn("sending registration ack", "error", err, "client_id", clientID)
		}
	}

	s.ensureListener(ctx, clientID)
}

// ensureListener starts the response listener for clientID unless one is
// already running; re-registrations reuse the existing subscription.
func (s *Server) ensureListener(ctx context.Context, clientID string) {
	s.mu.Lock()
	if _, ok := s.listeners[clientID]; ok {
		s.mu.Unlock()
		return
	}

	sub, err := s.conn.Subscribe(s.subjects.Response(clientID))
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("subscribing to client responses", "error", err, "client_id", clientID)
		return
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	l := &responseListener{
		clientID: clientID,
		sub:      sub,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.listeners[clientID] = l
	s.mu.Unlock()

	s.logger.Debug("listening for responses", "client_id", clientID)
	go s.responseLoop(listenerCtx, l)
}

// responseLoop renders every result one client publishes.
func (s *Server) responseLoop(ctx context.Context, l *responseListener) {
	defer close(l.done)
	for {
		msg, err := l.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, bus.ErrClosed) {
				s.logger.Error("receiving response", "error", err, "client_id", l.clientID)
			}
			return
		}
		s.renderResult(ctx, l.clientID, msg.Data)
	}
}

// dropListener tears down one client's listener and joins it.
func (s *Server) dropListener(id string) {
	s.mu.Lock()
	l, ok := s.listeners[id]
	if ok {
		delete(s.listeners, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	l.cancel()
	_ = l.sub.Unsubscribe()
	<-l.done
}

// closeListeners tears down every listener and joins them all.
func (s *Server) closeListeners() {
	s.mu.Lock()
	all := make([]*responseListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		all = append(all, l)
	}
	s.listeners = make(map[string]*responseListener)
	s.mu.Unlock()

	for _, l := range all {
		l.cancel()
		_ = l.sub.Unsubscribe()
		<-l.done
	}
}

// heartbeatLoop refreshes LastSeen for every beacon from a known client.
// Heartbeats never create registry entries.
func (s *Server) heartbeatLoop(ctx context.Context, sub bus.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, bus.ErrClosed) {
				s.logger.Error("receiving heartbeat", "error", err)
			}
			return
		}

		id := strings.TrimSpace(string(msg.Data))
		if id == "" {
			continue
		}
		if s.registry.Touch(id) {
			s.logger.Debug("heartbeat", "client_id", id)
		} else {
			s.logger.Debug("heartbeat from unknown client", "client_id", id)
		}
	}
}

// evictionLoop prunes clients whose LastSeen has fallen behind the TTL, and
// tears down their listeners.
func (s *Server) evictionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.registry.Prune(time.Now().Add(-s.ttl)) {
				s.logger.Info("evicting silent client", "client_id", id, "ttl", s.ttl)
				s.record(ctx, id, history.KindEvicted, "no heartbeat within "+s.ttl.String())
				s.dropListener(id)
			}
		}
	}
}

// record appends a history event when history is enabled. Failures are
// logged, never fatal.
func (s *Server) record(ctx context.Context, clientID string, kind history.Kind, detail string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, clientID, kind, detail); err != nil {
		s.logger.Warn("recording history", "error", err, "client_id", clientID)
	}
}

// signalExit is idempotent; the first call wins.
func (s *Server) signalExit() {
	s.exitOnce.Do(func() { close(s.exitCh) })
}
