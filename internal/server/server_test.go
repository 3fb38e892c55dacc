package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
	"github.com/frontend-sniper/frontend-sniper/internal/tools"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	calls  []string
	args   []json.RawMessage
	result *tools.Result
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) *tools.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, name)
	d.args = append(d.args, args)
	if !d.Has(name) {
		return tools.UnknownToolResult(normalizer.Normalize(name))
	}
	if d.result != nil {
		return d.result
	}
	return tools.TextResult("ok " + name)
}

var normalizer = tools.DefaultNormalizer(tools.DefaultPrefix)

func (d *recordingDispatcher) Normalize(name string) string { return normalizer.Normalize(name) }

func (d *recordingDispatcher) Has(name string) bool {
	n := normalizer.Normalize(name)
	for _, s := range tools.Catalog() {
		if s.Name == n {
			return true
		}
	}
	return false
}

type staticConsole []browser.ConsoleEntry

func (c staticConsole) ConsoleEntries() []browser.ConsoleEntry { return c }

func connect(t *testing.T, d Dispatcher, console ConsoleSource) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	srv := New(zaptest.NewLogger(t), "test", d, console)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestListTools(t *testing.T) {
	cs := connect(t, &recordingDispatcher{}, staticConsole(nil))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var got []string
	for _, tool := range res.Tools {
		got = append(got, tool.Name)
	}
	var want []string
	for _, s := range tools.Catalog() {
		want = append(want, s.Name)
	}
	if diff := cmp.Diff(want, got, cmpSorted); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}
}

var cmpSorted = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func TestCallTool(t *testing.T) {
	ctx := context.Background()

	t.Run("ForwardsNameAndArguments", func(t *testing.T) {
		d := &recordingDispatcher{}
		cs := connect(t, d, staticConsole(nil))

		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "click",
			Arguments: map[string]any{"selector": "#go"},
		})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		require.Len(t, res.Content, 1)
		assert.Equal(t, "ok click", res.Content[0].(*mcp.TextContent).Text)

		require.Equal(t, []string{"click"}, d.calls)
		assert.JSONEq(t, `{"selector":"#go"}`, string(d.args[0]))
	})

	t.Run("RoutedNamesReachTool", func(t *testing.T) {
		d := &recordingDispatcher{}
		cs := connect(t, d, staticConsole(nil))

		for _, name := range []string{"group__navigate", "srv:navigate", "mcp_frontend-sniper_navigate"} {
			res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: map[string]any{"url": "https://example.com"}})
			require.NoError(t, err, name)
			assert.False(t, res.IsError, name)
		}
		assert.Equal(t, []string{"navigate", "navigate", "navigate"}, d.calls)
	})

	t.Run("UnknownTool", func(t *testing.T) {
		d := &recordingDispatcher{}
		cs := connect(t, d, staticConsole(nil))

		res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "group__bogus", Arguments: map[string]any{}})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		require.Len(t, res.Content, 1)
		assert.Equal(t, "Unknown tool: bogus", res.Content[0].(*mcp.TextContent).Text)
		assert.Equal(t, []string{"group__bogus"}, d.calls)
	})

	t.Run("ErrorResult", func(t *testing.T) {
		d := &recordingDispatcher{result: tools.ErrorResult("click", assert.AnError)}
		cs := connect(t, d, staticConsole(nil))

		res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "click", Arguments: map[string]any{"selector": "#x"}})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "click failed: ")
	})

	t.Run("ImageResult", func(t *testing.T) {
		d := &recordingDispatcher{result: tools.ImageResult([]byte{0xff, 0xd8, 0xff}, "image/jpeg")}
		cs := connect(t, d, staticConsole(nil))

		res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "screenshot"})
		require.NoError(t, err)
		require.Len(t, res.Content, 1)
		img, ok := res.Content[0].(*mcp.ImageContent)
		require.True(t, ok)
		assert.Equal(t, "image/jpeg", img.MIMEType)
		assert.Equal(t, []byte{0xff, 0xd8, 0xff}, img.Data)
	})
}

func TestConsoleResources(t *testing.T) {
	ctx := context.Background()
	console := staticConsole{
		{Level: "log", Text: "booted"},
		{Level: "error", Text: "Uncaught TypeError"},
		{Level: "warning", Text: "deprecated"},
	}
	cs := connect(t, &recordingDispatcher{}, console)

	read := func(uri string) []browser.ConsoleEntry {
		t.Helper()
		res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, jsonMIMEType, res.Contents[0].MIMEType)
		var got []browser.ConsoleEntry
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &got))
		return got
	}

	assert.Equal(t, []browser.ConsoleEntry(console), read("sniper://console"))
	assert.Equal(t, []browser.ConsoleEntry{{Level: "error", Text: "Uncaught TypeError"}}, read("sniper://console/error"))
	assert.Empty(t, read("sniper://console/debug"))
}
