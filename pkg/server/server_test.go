package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browsermcp/pkg/config"
	"github.com/entrhq/browsermcp/pkg/tools/browser"
	"github.com/entrhq/browsermcp/pkg/wire"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Version = "test"
	cfg.Server.Port = 0
	cfg.Server.RequestTimeout = 2 * time.Second
	cfg.Server.MetricsEnabled = false
	cfg.KillExisting = false
	return cfg
}

// runServer starts Run in the background and returns a connected MCP client.
func runServer(t *testing.T, cfg Config) (*Server, *mcp.ClientSession, <-chan error) {
	t.Helper()

	srv, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, serverTransport) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	client := mcp.NewClient(&mcp.Implementation{Name: "agent", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return srv, session, done
}

// connectExecutor dials the server and answers every request with ok.
func connectExecutor(t *testing.T, srv *Server) {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			req, ok := wire.DecodeRequest(data)
			if !ok {
				continue
			}
			reply, _ := wire.EncodeResponse(req.ID, "ok", "")
			if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return srv.listener.Connected() }, 2*time.Second, 5*time.Millisecond)
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func TestServer_ToolRoundTrip(t *testing.T) {
	srv, session, _ := runServer(t, testConfig())
	connectExecutor(t, srv)

	res := callTool(t, session, browser.MsgPressKey, map[string]any{"key": "Tab"})
	require.False(t, res.IsError)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Pressed key Tab", text.Text)
	assert.Zero(t, srv.Broker().Pending())
}

func TestServer_NoExecutorIsToolError(t *testing.T) {
	_, session, _ := runServer(t, testConfig())

	res := callTool(t, session, browser.MsgGoBack, map[string]any{})
	assert.True(t, res.IsError)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "no executor connected")
}

func TestServer_NavigationRulesApplied(t *testing.T) {
	cfg := testConfig()
	cfg.DeniedURLs = []string{"https://internal.test/*"}
	srv, session, _ := runServer(t, cfg)
	connectExecutor(t, srv)

	res := callTool(t, session, browser.MsgNavigate, map[string]any{"url": "https://internal.test/admin"})
	assert.True(t, res.IsError)
}

func TestServer_RunStopsWhenAgentLeaves(t *testing.T) {
	srv, session, done := runServer(t, testConfig())
	connectExecutor(t, srv)

	require.NoError(t, session.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the agent disconnected")
	}
	assert.False(t, srv.listener.Connected())
	assert.NoError(t, srv.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestNew_InvalidNavigationPattern(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedURLs = []string{"https://[oops"}

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestConfigFromGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `version: "1"
sections:
  server:
    port: 9333
    request_timeout: 5s
  port_reclaim:
    kill_existing: false
  navigation:
    denied_urls: ["file://*"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, config.Initialize(path))

	cfg := ConfigFromGlobal()
	assert.Equal(t, 9333, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, config.DefaultHost, cfg.Server.Host)
	assert.False(t, cfg.KillExisting)
	assert.Equal(t, []string{"file://*"}, cfg.DeniedURLs)
}
