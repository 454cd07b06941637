// Package browser exposes the browser tool catalogue to MCP clients. Every
// tool forwards one or more messages to the remote executor through an
// Invoker and turns the reply into tool content.
package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entrhq/browsermcp/pkg/broker"
	"github.com/entrhq/browsermcp/pkg/logging"
)

// waitSlack is added to browser_wait's own duration when computing its deadline.
const waitSlack = 5 * time.Second

// Invoker sends one request to the executor and waits for its result.
// *broker.Broker implements it.
type Invoker interface {
	Invoke(ctx context.Context, msgType string, payload any, opts ...broker.CallOption) (json.RawMessage, error)
}

// Options configures the tool set.
type Options struct {
	// DefaultTimeout is the per-call deadline the invoker applies
	DefaultTimeout time.Duration

	// Logger receives one line per tool call
	Logger *logging.Logger
}

// Tools holds what the handlers share.
type Tools struct {
	invoker        Invoker
	guard          *NavigationGuard
	defaultTimeout time.Duration
	logger         *logging.Logger
}

// New creates the tool set. guard may be nil.
func New(invoker Invoker, guard *NavigationGuard, opts Options) *Tools {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = broker.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Tools{
		invoker:        invoker,
		guard:          guard,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}
}

// Register adds every browser tool to server.
func Register(server *mcp.Server, invoker Invoker, guard *NavigationGuard, opts Options) {
	New(invoker, guard, opts).Register(server)
}

// Register adds every browser tool to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgNavigate,
		Description: "Navigate to a URL",
	}, t.navigate)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgGoBack,
		Description: "Go back to the previous page",
	}, t.historyHandler(MsgGoBack, "Navigated back"))
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgGoForward,
		Description: "Go forward to the next page",
	}, t.historyHandler(MsgGoForward, "Navigated forward"))
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgSnapshot,
		Description: "Capture accessibility snapshot of the current page, this is better than screenshot",
	}, t.snapshot)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgClick,
		Description: "Perform click on a web page",
	}, t.elementHandler(MsgClick, "Clicked"))
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgHover,
		Description: "Hover over element on page",
	}, t.elementHandler(MsgHover, "Hovered over"))
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgType,
		Description: "Type text into editable element",
	}, t.typeText)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgSelectOption,
		Description: "Select an option in a dropdown",
	}, t.selectOption)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgDrag,
		Description: "Perform drag and drop between two elements",
	}, t.drag)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgPressKey,
		Description: "Press a key on the keyboard",
	}, t.pressKey)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgWait,
		Description: "Wait for a specified time in seconds",
	}, t.wait)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgScreenshot,
		Description: "Take a screenshot of the current page",
	}, t.screenshot)
	mcp.AddTool(server, &mcp.Tool{
		Name:        MsgGetConsoleLogs,
		Description: "Get the console logs from the browser",
	}, t.consoleLogs)
}

func (t *Tools) navigate(ctx context.Context, _ *mcp.CallToolRequest, in NavigateInput) (*mcp.CallToolResult, any, error) {
	if err := t.guard.Check(in.URL); err != nil {
		return errorResult(MsgNavigate, err), nil, nil
	}
	if _, err := t.invoker.Invoke(ctx, MsgNavigate, in); err != nil {
		return errorResult(MsgNavigate, err), nil, nil
	}
	return t.withSnapshot(ctx, fmt.Sprintf("Navigated to %s", in.URL))
}

func (t *Tools) historyHandler(msgType, done string) func(context.Context, *mcp.CallToolRequest, EmptyInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
		if _, err := t.invoker.Invoke(ctx, msgType, nil); err != nil {
			return errorResult(msgType, err), nil, nil
		}
		return t.withSnapshot(ctx, done)
	}
}

func (t *Tools) elementHandler(msgType, verb string) func(context.Context, *mcp.CallToolRequest, ElementInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ElementInput) (*mcp.CallToolResult, any, error) {
		if in.Ref == "" {
			return errorResult(msgType, fmt.Errorf("ref is required")), nil, nil
		}
		if _, err := t.invoker.Invoke(ctx, msgType, in); err != nil {
			return errorResult(msgType, err), nil, nil
		}
		return t.withSnapshot(ctx, fmt.Sprintf("%s %q", verb, in.Element))
	}
}

func (t *Tools) snapshot(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	text, err := t.captureSnapshot(ctx)
	if err != nil {
		return errorResult(MsgSnapshot, err), nil, nil
	}
	return textResult(text), nil, nil
}

func (t *Tools) typeText(ctx context.Context, _ *mcp.CallToolRequest, in TypeInput) (*mcp.CallToolResult, any, error) {
	if in.Ref == "" {
		return errorResult(MsgType, fmt.Errorf("ref is required")), nil, nil
	}
	if _, err := t.invoker.Invoke(ctx, MsgType, in); err != nil {
		return errorResult(MsgType, err), nil, nil
	}
	return t.withSnapshot(ctx, fmt.Sprintf("Typed %q into %q", in.Text, in.Element))
}

func (t *Tools) selectOption(ctx context.Context, _ *mcp.CallToolRequest, in SelectOptionInput) (*mcp.CallToolResult, any, error) {
	if in.Ref == "" {
		return errorResult(MsgSelectOption, fmt.Errorf("ref is required")), nil, nil
	}
	if len(in.Values) == 0 {
		return errorResult(MsgSelectOption, fmt.Errorf("values must not be empty")), nil, nil
	}
	if _, err := t.invoker.Invoke(ctx, MsgSelectOption, in); err != nil {
		return errorResult(MsgSelectOption, err), nil, nil
	}
	return t.withSnapshot(ctx, fmt.Sprintf("Selected option in %q", in.Element))
}

func (t *Tools) drag(ctx context.Context, _ *mcp.CallToolRequest, in DragInput) (*mcp.CallToolResult, any, error) {
	if in.StartRef == "" || in.EndRef == "" {
		return errorResult(MsgDrag, fmt.Errorf("startRef and endRef are required")), nil, nil
	}
	if _, err := t.invoker.Invoke(ctx, MsgDrag, in); err != nil {
		return errorResult(MsgDrag, err), nil, nil
	}
	return t.withSnapshot(ctx, fmt.Sprintf("Dragged %q to %q", in.StartElement, in.EndElement))
}

func (t *Tools) pressKey(ctx context.Context, _ *mcp.CallToolRequest, in PressKeyInput) (*mcp.CallToolResult, any, error) {
	if in.Key == "" {
		return errorResult(MsgPressKey, fmt.Errorf("key is required")), nil, nil
	}
	if _, err := t.invoker.Invoke(ctx, MsgPressKey, in); err != nil {
		return errorResult(MsgPressKey, err), nil, nil
	}
	return textResult(fmt.Sprintf("Pressed key %s", in.Key)), nil, nil
}

func (t *Tools) wait(ctx context.Context, _ *mcp.CallToolRequest, in WaitInput) (*mcp.CallToolResult, any, error) {
	d, err := in.Duration()
	if err != nil {
		return errorResult(MsgWait, err), nil, nil
	}

	var opts []broker.CallOption
	if d+waitSlack > t.defaultTimeout {
		opts = append(opts, broker.WithTimeout(d+waitSlack))
	}
	if _, err := t.invoker.Invoke(ctx, MsgWait, in, opts...); err != nil {
		return errorResult(MsgWait, err), nil, nil
	}
	return textResult(fmt.Sprintf("Waited for %s seconds", formatSeconds(in.Time))), nil, nil
}

func (t *Tools) screenshot(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	raw, err := t.invoker.Invoke(ctx, MsgScreenshot, nil)
	if err != nil {
		return errorResult(MsgScreenshot, err), nil, nil
	}

	data, mimeType, err := decodeImage(raw)
	if err != nil {
		return errorResult(MsgScreenshot, err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.ImageContent{Data: data, MIMEType: mimeType}},
	}, nil, nil
}

func (t *Tools) consoleLogs(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	raw, err := t.invoker.Invoke(ctx, MsgGetConsoleLogs, nil)
	if err != nil {
		return errorResult(MsgGetConsoleLogs, err), nil, nil
	}

	var entries []json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return errorResult(MsgGetConsoleLogs, fmt.Errorf("unexpected console log payload: %w", err)), nil, nil
		}
	}
	if len(entries) == 0 {
		return textResult("No console logs"), nil, nil
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, string(entry))
	}
	return textResult(strings.Join(lines, "\n")), nil, nil
}

// withSnapshot appends the page snapshot to an action's confirmation. A
// failed snapshot does not fail the action that already happened.
func (t *Tools) withSnapshot(ctx context.Context, done string) (*mcp.CallToolResult, any, error) {
	text, err := t.captureSnapshot(ctx)
	if err != nil {
		t.logger.Warnf("snapshot after %q failed: %v", done, err)
		return textResult(fmt.Sprintf("%s\n\n(snapshot unavailable: %v)", done, err)), nil, nil
	}
	return textResult(done + "\n\n" + text), nil, nil
}

// captureSnapshot asks for the URL, title and accessibility snapshot.
func (t *Tools) captureSnapshot(ctx context.Context) (string, error) {
	pageURL, err := t.invokeString(ctx, MsgGetURL)
	if err != nil {
		return "", err
	}
	title, err := t.invokeString(ctx, MsgGetTitle)
	if err != nil {
		return "", err
	}
	snapshot, err := t.invokeString(ctx, MsgSnapshot)
	if err != nil {
		return "", err
	}
	return formatSnapshot(pageURL, title, snapshot), nil
}

func (t *Tools) invokeString(ctx context.Context, msgType string) (string, error) {
	raw, err := t.invoker.Invoke(ctx, msgType, nil)
	if err != nil {
		return "", err
	}
	return resultString(raw), nil
}

func formatSnapshot(pageURL, title, snapshot string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Page URL: %s\n", pageURL)
	fmt.Fprintf(&b, "- Page Title: %s\n", title)
	b.WriteString("- Page Snapshot\n```yaml\n")
	b.WriteString(strings.TrimRight(snapshot, "\n"))
	b.WriteString("\n```\n")
	return b.String()
}

// resultString unwraps a JSON string result; other JSON is returned raw.
func resultString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// decodeImage accepts a base64 string, optionally as a data URL.
func decodeImage(raw json.RawMessage) ([]byte, string, error) {
	encoded := resultString(raw)
	if encoded == "" {
		return nil, "", fmt.Errorf("executor returned an empty screenshot")
	}

	mimeType := "image/png"
	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		if mt, _, _ := strings.Cut(header, ";"); mt != "" {
			mimeType = mt
		}
		encoded = data
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode screenshot: %w", err)
	}
	return data, mimeType, nil
}

func formatSeconds(seconds float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", seconds), "0"), ".")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(tool string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s failed: %v", tool, err)}},
	}
}
