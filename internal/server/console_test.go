// ABOUTME: Tests for the operator console: verb parsing, dispatch, and rendering.
// ABOUTME: Uses the in-memory bus so no command ever needs a live broker.

package server

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverlabs/drover/internal/history"
	"github.com/droverlabs/drover/internal/protocol"
)

func TestMain(m *testing.M) {
	// Assertions match on plain text.
	color.NoColor = true
	os.Exit(m.Run())
}

func TestUnknownVerb(t *testing.T) {
	h := newTestServer(t, nil)

	cont := h.srv.dispatchConsole(context.Background(), "frobnicate wk-01")

	assert.True(t, cont)
	assert.Contains(t, h.out.String(), "Unknown command: frobnicate")
}

func TestHelpListsEveryVerb(t *testing.T) {
	h := newTestServer(t, nil)

	h.srv.dispatchConsole(context.Background(), "help")

	out := h.out.String()
	for _, verb := range []string{"list", "ping", "execute", "sysinfo", "log", "shutdown", "history", "exit"} {
		assert.Contains(t, out, verb)
	}
}

func TestListWithNoClients(t *testing.T) {
	h := newTestServer(t, nil)

	h.srv.dispatchConsole(context.Background(), "list")

	assert.Contains(t, h.out.String(), "No clients connected.")
}

func TestListRendersClientTable(t *testing.T) {
	h := newTestServer(t, nil)
	h.reg.Upsert("ana-wk-01", testInfo())

	h.srv.dispatchConsole(context.Background(), "list")

	out := h.out.String()
	assert.Contains(t, out, "CLIENT ID")
	assert.Contains(t, out, "ana-wk-01")
	assert.Contains(t, out, "wk-01")
	assert.Contains(t, out, "Linux")
	assert.Contains(t, out, "1 client(s) connected.")
}

func TestListShowsOneEntryAfterReRegistration(t *testing.T) {
	h := newTestServer(t, nil)
	h.reg.Upsert("ana-wk-01", protocol.SystemInfo{
		Hostname: "old-host",
		Username: "ana",
		OSType:   "Linux",
	})
	h.reg.Upsert("ana-wk-01", testInfo())

	h.srv.dispatchConsole(context.Background(), "list")

	out := h.out.String()
	assert.Contains(t, out, "wk-01")
	assert.NotContains(t, out, "old-host")
	assert.Contains(t, out, "1 client(s) connected.")
}

func TestUnknownClientNeverTouchesBus(t *testing.T) {
	h := newTestServer(t, nil)

	h.srv.dispatchConsole(context.Background(), "ping ghost")

	assert.Contains(t, h.out.String(), "Unknown client: ghost")
	assert.Empty(t, h.conn.PublishedTo(h.srv.subjects.Command("ghost")))
}

func TestExecuteSendsShellCommand(t *testing.T) {
	h := newTestServer(t, nil)
	h.reg.Upsert("wk-01", testInfo())

	h.srv.dispatchConsole(context.Background(), "execute wk-01 uname -a")

	pubs := h.conn.PublishedTo(h.srv.subjects.Command("wk-01"))
	require.Len(t, pubs, 1)
	assert.JSONEq(t, `{"type":"Execute","command":"uname -a"}`, string(pubs[0].Data))
	assert.Contains(t, h.out.String(), "Sent Execute: uname -a to wk-01")
}

func TestArgumentlessCommandVerbs(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"ping wk-01", `{"type":"Ping"}`},
		{"sysinfo wk-01", `{"type":"GetSystemInfo"}`},
		{"shutdown wk-01", `{"type":"Shutdown"}`},
	}

	for _, tc := range tests {
		t.Run(strings.Fields(tc.line)[0], func(t *testing.T) {
			h := newTestServer(t, nil)
			h.reg.Upsert("wk-01", testInfo())

			h.srv.dispatchConsole(context.Background(), tc.line)

			pubs := h.conn.PublishedTo(h.srv.subjects.Command("wk-01"))
			require.Len(t, pubs, 1)
			assert.JSONEq(t, tc.want, string(pubs[0].Data))
		})
	}
}

func TestLogVerbSendsLogEvent(t *testing.T) {
	h := newTestServer(t, nil)
	h.reg.Upsert("wk-01", testInfo())

	h.srv.dispatchConsole(context.Background(), "log wk-01 warning disk almost full")

	pubs := h.conn.PublishedTo(h.srv.subjects.Command("wk-01"))
	require.Len(t, pubs, 1)
	assert.JSONEq(t, `{"type":"LogEvent","level":"Warning","message":"disk almost full"}`,
		string(pubs[0].Data))
	assert.Contains(t, h.out.String(), "Sent Log [WARNING]: disk almost full to wk-01")
}

func TestLogVerbRejectsUnknownLevel(t *testing.T) {
	h := newTestServer(t, nil)
	h.reg.Upsert("wk-01", testInfo())

	h.srv.dispatchConsole(context.Background(), "log wk-01 loudly broken")

	assert.Contains(t, h.out.String(), "Unknown log level: loudly")
	assert.Empty(t, h.conn.PublishedTo(h.srv.subjects.Command("wk-01")))
}

func TestVerbUsageLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"ping without id", "ping"},
		{"execute without command", "execute wk-01"},
		{"sysinfo extra args", "sysinfo wk-01 extra"},
		{"log without message", "log wk-01 info"},
		{"shutdown without id", "shutdown"},
		{"history without id", "history"},
		{"history bad count", "history wk-01 lots"},
		{"history zero count", "history wk-01 0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, nil)
			h.reg.Upsert("wk-01", testInfo())

			h.srv.dispatchConsole(context.Background(), tc.line)

			assert.Contains(t, h.out.String(), "usage:")
			assert.Empty(t, h.conn.PublishedTo(h.srv.subjects.Command("wk-01")))
		})
	}
}

func TestExitVerbsEndTheSession(t *testing.T) {
	h := newTestServer(t, nil)

	assert.False(t, h.srv.dispatchConsole(context.Background(), "exit"))
	assert.False(t, h.srv.dispatchConsole(context.Background(), "quit"))
	assert.True(t, h.srv.dispatchConsole(context.Background(), "help"))
}

func TestRenderResultFailure(t *testing.T) {
	h := newTestServer(t, nil)

	data, err := protocol.EncodeResult(protocol.CommandResult{
		Success:     false,
		Error:       "sh: nope: command not found",
		CommandType: protocol.TypeShell,
	})
	require.NoError(t, err)
	h.srv.renderResult(context.Background(), "wk-01", data)

	out := h.out.String()
	assert.Contains(t, out, "----- COMMAND RESULT -----")
	assert.Contains(t, out, "Client:  wk-01")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "sh: nope: command not found")
	assert.NotContains(t, out, "Output:")
}

func TestRenderResultSuccessWithOutput(t *testing.T) {
	h := newTestServer(t, nil)

	data, err := protocol.EncodeResult(protocol.CommandResult{
		Success:     true,
		Output:      "Linux wk-01 6.12.0\n",
		CommandType: protocol.TypeShell,
	})
	require.NoError(t, err)
	h.srv.renderResult(context.Background(), "wk-01", data)

	out := h.out.String()
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "Linux wk-01 6.12.0")
	assert.NotContains(t, out, "Error:")
}

func TestRenderResultUndecodableDropped(t *testing.T) {
	h := newTestServer(t, nil)

	h.srv.renderResult(context.Background(), "wk-01", []byte("not a result"))

	assert.NotContains(t, h.out.String(), "COMMAND RESULT")
}

func TestCommandsAndResultsRecorded(t *testing.T) {
	st := openTestHistory(t)
	h := newTestServer(t, func(cfg *Config) { cfg.History = st })
	h.reg.Upsert("wk-01", testInfo())
	ctx := context.Background()

	h.srv.dispatchConsole(ctx, "execute wk-01 uptime")

	data, err := protocol.EncodeResult(protocol.CommandResult{
		Success:     true,
		Output:      "12:00 up 3 days",
		CommandType: protocol.TypeShell,
	})
	require.NoError(t, err)
	h.srv.renderResult(ctx, "wk-01", data)

	events, err := st.Recent(ctx, "wk-01", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, history.KindResult, events[0].Kind)
	assert.Contains(t, events[0].Detail, "success=true")
	assert.Equal(t, history.KindCommand, events[1].Kind)
	assert.Equal(t, "Execute: uptime", events[1].Detail)
}

func TestHistoryVerbSurvivesEviction(t *testing.T) {
	st := openTestHistory(t)
	h := newTestServer(t, func(cfg *Config) { cfg.History = st })
	ctx := context.Background()

	// The client is long gone from the registry; only the store remembers.
	require.NoError(t, st.Record(ctx, "wk-99", history.KindRegistered, "wk-99 (ana / Linux)"))
	require.NoError(t, st.Record(ctx, "wk-99", history.KindEvicted, "no heartbeat within 1m0s"))

	h.srv.dispatchConsole(ctx, "history wk-99")

	out := h.out.String()
	assert.NotContains(t, out, "Unknown client")
	assert.Contains(t, out, "registered")
	assert.Contains(t, out, "evicted")
	assert.Contains(t, out, "no heartbeat within 1m0s")
}

func TestHistoryVerbHonorsCount(t *testing.T) {
	st := openTestHistory(t)
	h := newTestServer(t, func(cfg *Config) { cfg.History = st })
	ctx := context.Background()

	for _, detail := range []string{"first", "second", "third"} {
		require.NoError(t, st.Record(ctx, "wk-01", history.KindCommand, detail))
	}

	h.srv.dispatchConsole(ctx, "history wk-01 2")

	out := h.out.String()
	assert.Contains(t, out, "third")
	assert.Contains(t, out, "second")
	assert.NotContains(t, out, "first")
}

func TestHistoryVerbWhenDisabled(t *testing.T) {
	h := newTestServer(t, nil)

	h.srv.dispatchConsole(context.Background(), "history wk-01")

	assert.Contains(t, h.out.String(), "History recording is disabled.")
}

func TestHistoryVerbWithNoRows(t *testing.T) {
	st := openTestHistory(t)
	h := newTestServer(t, func(cfg *Config) { cfg.History = st })

	h.srv.dispatchConsole(context.Background(), "history silent-box")

	assert.Contains(t, h.out.String(), "No history for silent-box.")
}
