// ABOUTME: Agent runtime: registers with the operator, serves commands, publishes heartbeats.
// ABOUTME: Owns the command and heartbeat loops; a Shutdown command or context cancel stops Run.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry-go"

	"github.com/droverlabs/drover/internal/bus"
	"github.com/droverlabs/drover/internal/protocol"
	"github.com/droverlabs/drover/internal/shell"
	"github.com/droverlabs/drover/internal/sysinfo"
)

// Registration timing. Backoff applies only while the operator is absent
// (no responders on the register subject); it grows geometrically from the
// base by the factor up to the cap, and never gives up on its own.
const (
	registerTimeout       = 5 * time.Second
	registerBackoffBase   = 2 * time.Second
	registerBackoffFactor = 1.5
	registerBackoffMax    = 60 * time.Second

	defaultHeartbeatInterval = 30 * time.Second
)

// Config carries the agent's dependencies and settings. Conn is required;
// everything else has a default.
type Config struct {
	Conn bus.Conn

	// SubjectPrefix namespaces all bus subjects (default "rs-support").
	SubjectPrefix string

	// ClientID overrides the derived username-hostname identity. It must be
	// subject safe; derived identities are sanitized automatically.
	ClientID string

	// HeartbeatInterval is the beacon period (default 30s).
	HeartbeatInterval time.Duration

	Logger *slog.Logger

	// Runner executes Execute commands (default: the platform shell).
	Runner shell.Runner

	// Probe samples the local machine (default: sysinfo.Collect).
	Probe func() protocol.SystemInfo
}

// Agent is one remotely controllable client process.
type Agent struct {
	conn     bus.Conn
	subjects protocol.Subjects
	id       string
	interval time.Duration
	logger   *slog.Logger
	runner   shell.Runner
	probe    func() protocol.SystemInfo

	// Overridable in tests; production values come from the constants above.
	registerTimeout time.Duration
	backoffBase     time.Duration
	backoffFactor   float64
	backoffMax      time.Duration

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New validates cfg and builds an Agent. The bus connection must already be
// established.
func New(cfg Config) (*Agent, error) {
	if cfg.Conn == nil {
		return nil, errors.New("bus connection is required")
	}

	id := cfg.ClientID
	if id == "" {
		id = sysinfo.ClientID()
	}
	if !protocol.ValidClientID(id) {
		return nil, fmt.Errorf("client id %q may only contain [A-Za-z0-9_-]", id)
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runner := cfg.Runner
	if runner == nil {
		runner = shell.New()
	}

	probe := cfg.Probe
	if probe == nil {
		probe = sysinfo.Collect
	}

	return &Agent{
		conn:            cfg.Conn,
		subjects:        protocol.NewSubjects(cfg.SubjectPrefix),
		id:              id,
		interval:        interval,
		logger:          logger.With("component", "agent"),
		runner:          runner,
		probe:           probe,
		registerTimeout: registerTimeout,
		backoffBase:     registerBackoffBase,
		backoffFactor:   registerBackoffFactor,
		backoffMax:      registerBackoffMax,
		shutdownCh:      make(chan struct{}),
	}, nil
}

// ID returns the identifier this agent registers under.
func (a *Agent) ID() string { return a.id }

// Run registers with the operator and serves commands until a Shutdown
// command arrives or ctx is cancelled. Both are clean stops; Run joins its
// loops before returning.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return fmt.Errorf("registering with operator: %w", err)
	}

	sub, err := a.conn.Subscribe(a.subjects.Command(a.id))
	if err != nil {
		return fmt.Errorf("subscribing to command subject: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.commandLoop(loopCtx, sub)
	}()
	go func() {
		defer wg.Done()
		a.heartbeatLoop(loopCtx)
	}()

	select {
	case <-a.shutdownCh:
		a.logger.Info("shutdown command received, stopping")
	case <-ctx.Done():
		a.logger.Info("context cancelled, stopping")
	}

	cancel()
	if err := sub.Unsubscribe(); err != nil {
		a.logger.Debug("unsubscribing command subject", "error", err)
	}
	wg.Wait()
	return nil
}

// register performs the registration handshake. A missing operator
// (ErrNoResponders) is retried with exponential backoff indefinitely; any
// other failure aborts startup.
func (a *Agent) register(ctx context.Context) error {
	info := a.probe()
	payload, err := protocol.EncodeSystemInfo(info)
	if err != nil {
		return err
	}

	req := &bus.Message{
		Subject: a.subjects.Register(),
		Header:  map[string]string{protocol.HeaderClientID: a.id},
		Data:    payload,
	}

	a.logger.Info("registering with operator",
		"client_id", a.id, "subject", req.Subject, "hostname", info.Hostname)

	return retry.Do(
		func() error {
			reply, err := a.conn.Request(ctx, req, a.registerTimeout)
			if err != nil {
				return err
			}
			if string(reply.Data) != protocol.RegistrationAck {
				a.logger.Warn("unexpected registration reply", "body", string(reply.Data))
			}
			a.logger.Info("registered with operator", "client_id", a.id)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0), // keep trying until the operator appears
		retry.Delay(a.backoffBase),
		retry.MaxDelay(a.backoffMax),
		retry.DelayType(a.backoffDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, bus.ErrNoResponders) }),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Warn("operator not responding, will retry",
				"attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
}

// backoffDelay computes base * factor^n capped at the maximum. Grown in float
// space: factor^n overflows time.Duration long before an unbounded retry run
// ends.
func (a *Agent) backoffDelay(n uint, _ error, _ *retry.Config) time.Duration {
	d := float64(a.backoffBase) * math.Pow(a.backoffFactor, float64(n))
	if limit := float64(a.backoffMax); d > limit || math.IsInf(d, 1) {
		return a.backoffMax
	}
	return time.Duration(d)
}

// commandLoop serves commands until shutdown or context cancel. Once shutdown
// is signalled no further command is dispatched, even if more are queued.
func (a *Agent) commandLoop(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-a.shutdownCh:
			return
		default:
		}

		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, bus.ErrClosed) {
				a.logger.Error("receiving command", "error", err)
			}
			return
		}
		a.handleCommand(ctx, msg.Data)
	}
}

// handleCommand decodes, dispatches, and answers one command payload.
func (a *Agent) handleCommand(ctx context.Context, payload []byte) {
	cmd, err := protocol.DecodeCommand(payload)
	if err != nil {
		a.logger.Error("dropping undecodable command", "error", err)
		return
	}
	a.logger.Info("received command", "command", cmd)

	result := a.dispatch(ctx, cmd)

	data, err := protocol.EncodeResult(result)
	if err != nil {
		a.logger.Error("encoding result", "error", err)
		return
	}
	if err := a.conn.Publish(a.subjects.Response(a.id), data); err != nil {
		a.logger.Error("publishing result", "error", err)
	}
}

// dispatch produces the CommandResult for one decoded command. The switch is
// exhaustive over the protocol's closed variant set.
func (a *Agent) dispatch(ctx context.Context, cmd protocol.Command) protocol.CommandResult {
	switch c := cmd.(type) {
	case protocol.Ping:
		return protocol.CommandResult{
			Success:     true,
			Output:      "Pong",
			CommandType: protocol.TypeInternal,
		}
	case protocol.Execute:
		return a.execute(ctx, c.Command)
	case protocol.GetSystemInfo:
		return a.systemInfo()
	case protocol.Shutdown:
		a.signalShutdown()
		return protocol.CommandResult{
			Success:     true,
			Output:      "Client shutting down",
			CommandType: protocol.TypeInternal,
		}
	case protocol.LogEvent:
		return a.logEvent(c)
	default:
		// DecodeCommand only produces the variants above.
		return protocol.CommandResult{
			Success:     false,
			Error:       fmt.Sprintf("unhandled command %T", cmd),
			CommandType: protocol.TypeInternal,
		}
	}
}

func (a *Agent) execute(ctx context.Context, command string) protocol.CommandResult {
	res, err := a.runner.Run(ctx, command)
	if err != nil {
		return protocol.CommandResult{
			Success:     false,
			Error:       fmt.Sprintf("Failed to execute command: %v", err),
			CommandType: protocol.TypeShell,
		}
	}

	result := protocol.CommandResult{
		Success:     res.ExitOK,
		Output:      res.Stdout,
		CommandType: protocol.TypeShell,
	}
	// Stderr rides along even on success; on failure it is the error.
	if res.Stderr != "" {
		result.Error = res.Stderr
	}
	return result
}

func (a *Agent) systemInfo() protocol.CommandResult {
	out, err := protocol.FormatSystemInfo(a.probe())
	if err != nil {
		return protocol.CommandResult{
			Success:     false,
			Error:       err.Error(),
			CommandType: protocol.TypeInternal,
		}
	}
	return protocol.CommandResult{
		Success:     true,
		Output:      out,
		CommandType: protocol.TypeInternal,
	}
}

func (a *Agent) logEvent(ev protocol.LogEvent) protocol.CommandResult {
	switch ev.Level {
	case protocol.LevelDebug:
		a.logger.Debug(ev.Message)
	case protocol.LevelInfo:
		a.logger.Info(ev.Message)
	case protocol.LevelWarning:
		a.logger.Warn(ev.Message)
	case protocol.LevelError:
		a.logger.Error(ev.Message)
	}
	return protocol.CommandResult{
		Success:     true,
		Output:      fmt.Sprintf("Logged: [%s] %s", ev.Level, ev.Message),
		CommandType: protocol.TypeInternal,
	}
}

// heartbeatLoop publishes this agent's id on the heartbeat subject every
// interval until the context ends.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.conn.Publish(a.subjects.Heartbeat(), []byte(a.id)); err != nil {
				a.logger.Warn("publishing heartbeat", "error", err)
				continue
			}
			a.logger.Debug("heartbeat sent")
		}
	}
}

// signalShutdown is idempotent; the first call wins.
func (a *Agent) signalShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdownCh) })
}
