package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browsermcp/pkg/tools/browser"
	"github.com/entrhq/browsermcp/pkg/wire"
)

// fakeActions records every call as "method arg..." and returns canned values.
type fakeActions struct {
	mu    sync.Mutex
	calls []string
	err   error
	logs  []browser.ConsoleEntry
}

func (f *fakeActions) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeActions) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeActions) Navigate(_ context.Context, url string) error {
	return f.record("navigate " + url)
}
func (f *fakeActions) GoBack(context.Context) error    { return f.record("back") }
func (f *fakeActions) GoForward(context.Context) error { return f.record("forward") }
func (f *fakeActions) Snapshot(context.Context) (string, error) {
	return "- button \"OK\" [ref=s1e1]\n", f.record("snapshot")
}
func (f *fakeActions) Click(_ context.Context, ref string) error { return f.record("click " + ref) }
func (f *fakeActions) Hover(_ context.Context, ref string) error { return f.record("hover " + ref) }
func (f *fakeActions) Type(_ context.Context, ref, text string, submit bool) error {
	call := "type " + ref + " " + text
	if submit {
		call += " submit"
	}
	return f.record(call)
}
func (f *fakeActions) SelectOption(_ context.Context, ref string, values []string) error {
	data, _ := json.Marshal(values)
	return f.record("select " + ref + " " + string(data))
}
func (f *fakeActions) Drag(_ context.Context, startRef, endRef string) error {
	return f.record("drag " + startRef + " " + endRef)
}
func (f *fakeActions) PressKey(_ context.Context, key string) error { return f.record("key " + key) }
func (f *fakeActions) Screenshot(context.Context) ([]byte, error) {
	return []byte("png-bytes"), f.record("screenshot")
}
func (f *fakeActions) ConsoleLogs(context.Context) ([]browser.ConsoleEntry, error) {
	return f.logs, f.record("console")
}
func (f *fakeActions) URL(context.Context) (string, error) {
	return "https://example.com/", f.record("url")
}
func (f *fakeActions) Title(context.Context) (string, error) {
	return "Example", f.record("title")
}

func request(t *testing.T, msgType string, payload any) wire.Request {
	t.Helper()
	frame, err := wire.EncodeRequest(1, msgType, payload)
	require.NoError(t, err)
	req, ok := wire.DecodeRequest(frame)
	require.True(t, ok)
	return req
}

func TestDispatcher_RoutesActions(t *testing.T) {
	tests := []struct {
		msgType string
		payload any
		call    string
	}{
		{browser.MsgNavigate, browser.NavigateInput{URL: "https://go.dev"}, "navigate https://go.dev"},
		{browser.MsgGoBack, nil, "back"},
		{browser.MsgGoForward, nil, "forward"},
		{browser.MsgClick, browser.ElementInput{Element: "OK", Ref: "s1e1"}, "click s1e1"},
		{browser.MsgHover, browser.ElementInput{Element: "OK", Ref: "s1e2"}, "hover s1e2"},
		{browser.MsgType, browser.TypeInput{Ref: "s1e3", Text: "hi", Submit: true}, "type s1e3 hi submit"},
		{browser.MsgSelectOption, browser.SelectOptionInput{Ref: "s1e4", Values: []string{"a", "b"}}, `select s1e4 ["a","b"]`},
		{browser.MsgDrag, browser.DragInput{StartRef: "s1e5", EndRef: "s1e6"}, "drag s1e5 s1e6"},
		{browser.MsgPressKey, browser.PressKeyInput{Key: "ArrowDown"}, "key ArrowDown"},
	}

	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			actions := &fakeActions{}
			result, err := NewDispatcher(actions).Handle(context.Background(), request(t, tt.msgType, tt.payload))
			require.NoError(t, err)
			assert.Nil(t, result)
			assert.Equal(t, []string{tt.call}, actions.recorded())
		})
	}
}

func TestDispatcher_ValueResults(t *testing.T) {
	actions := &fakeActions{}
	d := NewDispatcher(actions)
	ctx := context.Background()

	result, err := d.Handle(ctx, request(t, browser.MsgGetURL, nil))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", result)

	result, err = d.Handle(ctx, request(t, browser.MsgGetTitle, nil))
	require.NoError(t, err)
	assert.Equal(t, "Example", result)

	result, err = d.Handle(ctx, request(t, browser.MsgSnapshot, nil))
	require.NoError(t, err)
	assert.Contains(t, result, "[ref=s1e1]")

	result, err = d.Handle(ctx, request(t, browser.MsgScreenshot, nil))
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(result.(string))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(decoded))
}

func TestDispatcher_ConsoleLogsNeverNull(t *testing.T) {
	d := NewDispatcher(&fakeActions{})

	result, err := d.Handle(context.Background(), request(t, browser.MsgGetConsoleLogs, nil))
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDispatcher_Wait(t *testing.T) {
	d := NewDispatcher(&fakeActions{})

	start := time.Now()
	_, err := d.Handle(context.Background(), request(t, browser.MsgWait, browser.WaitInput{Time: 0.05}))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Handle(ctx, request(t, browser.MsgWait, browser.WaitInput{Time: 10}))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = d.Handle(context.Background(), request(t, browser.MsgWait, browser.WaitInput{Time: -1}))
	assert.Error(t, err)

	_, err = d.Handle(context.Background(), request(t, browser.MsgWait, browser.WaitInput{Time: 1e12}))
	assert.ErrorContains(t, err, "must not exceed")
}

func TestDispatcher_Errors(t *testing.T) {
	actions := &fakeActions{err: errors.New("element detached")}
	d := NewDispatcher(actions)
	ctx := context.Background()

	_, err := d.Handle(ctx, request(t, browser.MsgClick, browser.ElementInput{Ref: "s1e1"}))
	assert.EqualError(t, err, "element detached")

	_, err = d.Handle(ctx, request(t, "browser_teleport", nil))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = d.Handle(ctx, request(t, browser.MsgNavigate, json.RawMessage(`{"url":42}`)))
	assert.Error(t, err)

	_, err = d.Handle(ctx, request(t, browser.MsgNavigate, nil))
	assert.EqualError(t, err, "url is required")
}
