package browser

import (
	"fmt"
	"math"
	"time"
)

// Message types understood by the executor. Tool names double as message
// types; getUrl and getTitle are only used internally for snapshots.
const (
	MsgNavigate       = "browser_navigate"
	MsgGoBack         = "browser_go_back"
	MsgGoForward      = "browser_go_forward"
	MsgSnapshot       = "browser_snapshot"
	MsgClick          = "browser_click"
	MsgHover          = "browser_hover"
	MsgType           = "browser_type"
	MsgSelectOption   = "browser_select_option"
	MsgDrag           = "browser_drag"
	MsgPressKey       = "browser_press_key"
	MsgWait           = "browser_wait"
	MsgScreenshot     = "browser_screenshot"
	MsgGetConsoleLogs = "browser_get_console_logs"
	MsgGetURL         = "getUrl"
	MsgGetTitle       = "getTitle"
)

type NavigateInput struct {
	URL string `json:"url" jsonschema:"The URL to navigate to"`
}

type EmptyInput struct{}

// ElementInput identifies an element from the last page snapshot.
type ElementInput struct {
	Element string `json:"element" jsonschema:"Human-readable element description used to obtain permission to interact with the element"`
	Ref     string `json:"ref" jsonschema:"Exact target element reference from the page snapshot"`
}

type TypeInput struct {
	Element string `json:"element" jsonschema:"Human-readable element description used to obtain permission to interact with the element"`
	Ref     string `json:"ref" jsonschema:"Exact target element reference from the page snapshot"`
	Text    string `json:"text" jsonschema:"Text to type into the element"`
	Submit  bool   `json:"submit,omitempty" jsonschema:"Whether to submit entered text (press Enter after)"`
}

type SelectOptionInput struct {
	Element string   `json:"element" jsonschema:"Human-readable element description used to obtain permission to interact with the element"`
	Ref     string   `json:"ref" jsonschema:"Exact target element reference from the page snapshot"`
	Values  []string `json:"values" jsonschema:"Array of values to select in the dropdown. This can be a single value or multiple values."`
}

type DragInput struct {
	StartElement string `json:"startElement" jsonschema:"Human-readable source element description used to obtain permission to interact with the element"`
	StartRef     string `json:"startRef" jsonschema:"Exact source element reference from the page snapshot"`
	EndElement   string `json:"endElement" jsonschema:"Human-readable target element description used to obtain permission to interact with the element"`
	EndRef       string `json:"endRef" jsonschema:"Exact target element reference from the page snapshot"`
}

type PressKeyInput struct {
	Key string `json:"key" jsonschema:"Name of the key to press or a character to generate, such as ArrowLeft or a"`
}

// MaxWaitSeconds is the longest browser_wait accepts.
const MaxWaitSeconds = 3600

type WaitInput struct {
	Time float64 `json:"time" jsonschema:"The time to wait in seconds"`
}

// Duration converts Time to a duration. It fails for negative, non-finite,
// and values above MaxWaitSeconds.
func (in WaitInput) Duration() (time.Duration, error) {
	if math.IsNaN(in.Time) || math.IsInf(in.Time, 0) || in.Time < 0 {
		return 0, fmt.Errorf("time must be a non-negative number of seconds")
	}
	if in.Time > MaxWaitSeconds {
		return 0, fmt.Errorf("time must not exceed %d seconds", MaxWaitSeconds)
	}
	return time.Duration(in.Time * float64(time.Second)), nil
}

// ConsoleEntry is one captured browser console message.
type ConsoleEntry struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Location  string `json:"location,omitempty"`
}
