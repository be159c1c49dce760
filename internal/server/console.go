// ABOUTME: Interactive operator console: parses verbs from stdin and dispatches commands.
// ABOUTME: Renders command results, the client table, and recorded history.

package server

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/droverlabs/drover/internal/history"
	"github.com/droverlabs/drover/internal/protocol"
)

// consoleLoop reads verbs until exit, EOF, or a read error. EOF ends the
// session the same way the exit verb does.
func (s *Server) consoleLoop(ctx context.Context) {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				s.logger.Error("reading console input", "error", err)
			}
			s.signalExit()
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.dispatchConsole(ctx, line) {
			s.signalExit()
			return
		}
	}
}

// dispatchConsole handles one console line. It returns false when the
// session should end.
func (s *Server) dispatchConsole(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "exit", "quit":
		return false

	case "help":
		s.printHelp()

	case "list":
		s.printClients()

	case "ping":
		if len(args) != 1 {
			s.printUsage("ping <client-id>")
			return true
		}
		s.sendCommand(ctx, args[0], protocol.Ping{})

	case "execute":
		if len(args) < 2 {
			s.printUsage("execute <client-id> <command>")
			return true
		}
		s.sendCommand(ctx, args[0], protocol.Execute{Command: strings.Join(args[1:], " ")})

	case "sysinfo":
		if len(args) != 1 {
			s.printUsage("sysinfo <client-id>")
			return true
		}
		s.sendCommand(ctx, args[0], protocol.GetSystemInfo{})

	case "log":
		if len(args) < 3 {
			s.printUsage("log <client-id> <level> <message>")
			return true
		}
		level, ok := protocol.ParseLogLevel(args[1])
		if !ok {
			fmt.Fprintf(s.out, "Unknown log level: %s (use debug, info, warning, or error)\n", args[1])
			return true
		}
		s.sendCommand(ctx, args[0], protocol.LogEvent{
			Level:   level,
			Message: strings.Join(args[2:], " "),
		})

	case "shutdown":
		if len(args) != 1 {
			s.printUsage("shutdown <client-id>")
			return true
		}
		s.sendCommand(ctx, args[0], protocol.Shutdown{})

	case "history":
		if len(args) < 1 || len(args) > 2 {
			s.printUsage("history <client-id> [count]")
			return true
		}
		limit := 0
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				s.printUsage("history <client-id> [count]")
				return true
			}
			limit = n
		}
		s.printHistory(ctx, args[0], limit)

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (try 'help')\n", verb)
	}

	return true
}

// sendCommand publishes cmd to one registered client. Unknown client IDs are
// rejected before anything touches the bus.
func (s *Server) sendCommand(ctx context.Context, clientID string, cmd protocol.Command) {
	if _, ok := s.registry.Get(clientID); !ok {
		fmt.Fprintf(s.out, "Unknown client: %s (use 'list' to see connected clients)\n", clientID)
		return
	}

	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		s.logger.Error("encoding command", "error", err, "client_id", clientID)
		return
	}
	if err := s.conn.Publish(s.subjects.Command(clientID), data); err != nil {
		s.logger.Error("sending command", "error", err, "client_id", clientID)
		fmt.Fprintf(s.out, "Failed to send command: %v\n", err)
		return
	}

	fmt.Fprintf(s.out, "Sent %s to %s\n", cmd, clientID)
	s.record(ctx, clientID, history.KindCommand, cmd.String())

	// Give the asynchronous result a moment to render before the next
	// prompt. Purely cosmetic.
	if s.pacing > 0 {
		timer := time.NewTimer(s.pacing)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
}

// renderResult decodes and prints one command result from a client.
func (s *Server) renderResult(ctx context.Context, clientID string, data []byte) {
	res, err := protocol.DecodeResult(data)
	if err != nil {
		s.logger.Warn("dropping undecodable result", "error", err, "client_id", clientID)
		return
	}

	s.printMu.Lock()
	defer s.printMu.Unlock()

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Fprintln(s.out)
	cyan.Fprintln(s.out, "----- COMMAND RESULT -----")
	fmt.Fprintf(s.out, "Client:  %s\n", clientID)
	if res.Success {
		fmt.Fprint(s.out, "Status:  ")
		green.Fprintln(s.out, "SUCCESS")
	} else {
		fmt.Fprint(s.out, "Status:  ")
		red.Fprintln(s.out, "FAILED")
	}
	if res.Output != "" {
		fmt.Fprintln(s.out, "Output:")
		fmt.Fprintln(s.out, strings.TrimRight(res.Output, "\n"))
	}
	if res.Error != "" {
		fmt.Fprint(s.out, "Error:   ")
		red.Fprintln(s.out, res.Error)
	}
	cyan.Fprintln(s.out, "--------------------------")

	s.record(ctx, clientID, history.KindResult,
		fmt.Sprintf("%s success=%t", res.CommandType, res.Success))
}

// printClients renders the registry as a table.
func (s *Server) printClients() {
	clients := s.registry.Snapshot()

	s.printMu.Lock()
	defer s.printMu.Unlock()

	if len(clients) == 0 {
		fmt.Fprintln(s.out, "No clients connected.")
		return
	}

	cyan := color.New(color.FgCyan)
	cyan.Fprintf(s.out, "%-24s %-20s %-16s %-10s %s\n",
		"CLIENT ID", "HOSTNAME", "USER", "OS", "LAST SEEN")
	for _, c := range clients {
		fmt.Fprintf(s.out, "%-24s %-20s %-16s %-10s %s\n",
			c.ID, c.Info.Hostname, c.Info.Username, c.Info.OSType, humanSince(c.LastSeen))
	}
	fmt.Fprintf(s.out, "%d client(s) connected.\n", len(clients))
}

// printHistory renders recent recorded events for one client ID. It queries
// by ID alone, so history survives eviction and shutdown.
func (s *Server) printHistory(ctx context.Context, clientID string, limit int) {
	if s.history == nil {
		fmt.Fprintln(s.out, "History recording is disabled.")
		return
	}

	events, err := s.history.Recent(ctx, clientID, limit)
	if err != nil {
		s.logger.Error("querying history", "error", err, "client_id", clientID)
		fmt.Fprintf(s.out, "Failed to read history: %v\n", err)
		return
	}

	s.printMu.Lock()
	defer s.printMu.Unlock()

	if len(events) == 0 {
		fmt.Fprintf(s.out, "No history for %s.\n", clientID)
		return
	}

	for _, e := range events {
		fmt.Fprintf(s.out, "%s  %-10s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Detail)
	}
}

func (s *Server) printHelp() {
	s.printMu.Lock()
	defer s.printMu.Unlock()

	cyan := color.New(color.FgCyan)
	cyan.Fprintln(s.out, "Available commands:")
	fmt.Fprintln(s.out, "  list                                 show connected clients")
	fmt.Fprintln(s.out, "  ping <client-id>                     check a client is responsive")
	fmt.Fprintln(s.out, "  execute <client-id> <command>        run a shell command on a client")
	fmt.Fprintln(s.out, "  sysinfo <client-id>                  fetch a client's system details")
	fmt.Fprintln(s.out, "  log <client-id> <level> <message>    have a client log a message")
	fmt.Fprintln(s.out, "  shutdown <client-id>                 ask a client to exit")
	fmt.Fprintln(s.out, "  history <client-id> [count]          show recent activity for a client")
	fmt.Fprintln(s.out, "  help                                 show this help")
	fmt.Fprintln(s.out, "  exit                                 stop the server")
}

func (s *Server) printUsage(usage string) {
	fmt.Fprintf(s.out, "usage: %s\n", usage)
}

// humanSince renders how long ago t was, coarsely.
func humanSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
