// Package executor is the reference remote executor. It dials the browsermcp
// WebSocket endpoint, answers each request envelope by driving a browser
// page, and reconnects with backoff when the socket drops.
//
// Architecture:
//
//	browsermcp (listener) <── ws ── Client ──> Dispatcher ──> Actions (Browser)
//
// The Client owns the socket and envelopes, the Dispatcher maps message
// types onto Actions, and Browser implements Actions with Playwright.
package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/entrhq/browsermcp/pkg/backoff"
	"github.com/entrhq/browsermcp/pkg/tools/browser"
	"github.com/entrhq/browsermcp/pkg/wire"
)

// ErrUnsupportedType is returned for message types the executor does not know.
var ErrUnsupportedType = errors.New("unsupported message type")

// Actions are the page operations a browser backend provides. Element refs
// come from the most recent Snapshot.
type Actions interface {
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Snapshot(ctx context.Context) (string, error)
	Click(ctx context.Context, ref string) error
	Hover(ctx context.Context, ref string) error
	Type(ctx context.Context, ref, text string, submit bool) error
	SelectOption(ctx context.Context, ref string, values []string) error
	Drag(ctx context.Context, startRef, endRef string) error
	PressKey(ctx context.Context, key string) error
	Screenshot(ctx context.Context) ([]byte, error)
	ConsoleLogs(ctx context.Context) ([]browser.ConsoleEntry, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// Handler answers one request. A nil result with a nil error is a success
// with no value.
type Handler interface {
	Handle(ctx context.Context, req wire.Request) (any, error)
}

// Dispatcher routes requests to Actions by message type.
type Dispatcher struct {
	actions Actions
}

// NewDispatcher creates a dispatcher over actions.
func NewDispatcher(actions Actions) *Dispatcher {
	return &Dispatcher{actions: actions}
}

// Handle decodes the payload for req.Type and performs the action.
func (d *Dispatcher) Handle(ctx context.Context, req wire.Request) (any, error) {
	a := d.actions

	switch req.Type {
	case browser.MsgNavigate:
		var in browser.NavigateInput
		if err := decodePayload(req, &in); err != nil {
			return nil, err
		}
		if in.URL == "" {
			return nil, errors.New("url is required")
		}
		return nil, a.Navigate(ctx, in.URL)

	case browser.MsgGoBack:
		return nil, a.GoBack(ctx)

	case browser.MsgGoForward:
		return nil, a.GoForward(ctx)

	case browser.MsgSnapshot:
		return a.Snapshot(ctx)

	case browser.MsgClick, browser.MsgHover:
		var in browser.ElementInput
		if err := decodePayload(req, &in); err != nil {
			return nil, err
		}
		if req.Type == browser.MsgClick {
			return nil, a.Click(ctx, in.Ref)
		}
		return nil, a.Hover(ctx, in.Ref)

	case browser.MsgType:
		var in browser.TypeInput
		if err := decodePayload(req, &in); err != nil {
			return nil, err
		}
		return nil, a.Type(ctx, in.Ref, in.Text, in.Submit)

	case browser.MsgSelectOption:
		var in browser.SelectOptionInput
		if err := decodePayload(req, &in); err != nil {
			return nil, err
		}
		return nil, a.SelectOption(ctx, in.Ref, in.Values)

	case browser.MsgDrag:
		var in browser.DragInput
		if err := decodePayload(req, &in); err != nil {
			return nil, err
		}
		return nil, a.Drag(ctx, in.StartRef, in.EndRef)

	case browser.MsgPressKey:
		var in browser.PressKeyInput
		if err := decodePayload(req, &in); err != nil {
			return nil, err
		}
		return nil, a.PressKey(ctx, in.Key)

	case browser.MsgWait:
		var in browser.WaitInput
		if err := decodePayload(req, &in); err != nil {
			return nil, err
		}
		d, err := in.Duration()
		if err != nil {
			return nil, err
		}
		return nil, backoff.Sleep(ctx, d)

	case browser.MsgScreenshot:
		png, err := a.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(png), nil

	case browser.MsgGetConsoleLogs:
		logs, err := a.ConsoleLogs(ctx)
		if err != nil {
			return nil, err
		}
		if logs == nil {
			logs = []browser.ConsoleEntry{}
		}
		return logs, nil

	case browser.MsgGetURL:
		return a.URL(ctx)

	case browser.MsgGetTitle:
		return a.Title(ctx)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, req.Type)
	}
}

func decodePayload(req wire.Request, v any) error {
	if len(req.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", req.Type, err)
	}
	return nil
}
