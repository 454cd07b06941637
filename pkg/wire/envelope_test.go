package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	t.Run("struct payload", func(t *testing.T) {
		data, err := EncodeRequest(7, "browser_navigate", map[string]string{"url": "https://example.com"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":7,"type":"browser_navigate","payload":{"url":"https://example.com"}}`, string(data))
	})

	t.Run("nil payload becomes empty object", func(t *testing.T) {
		data, err := EncodeRequest(1, "browser_go_back", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":1,"type":"browser_go_back","payload":{}}`, string(data))
	})

	t.Run("raw payload passes through", func(t *testing.T) {
		data, err := EncodeRequest(2, "browser_wait", json.RawMessage(`{"time":2}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":2,"type":"browser_wait","payload":{"time":2}}`, string(data))
	})

	t.Run("invalid raw payload", func(t *testing.T) {
		_, err := EncodeRequest(3, "browser_wait", json.RawMessage(`{"time":`))
		assert.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := EncodeRequest(4, "", nil)
		assert.Error(t, err)
	})
}

func TestEncodeResponse(t *testing.T) {
	data, err := EncodeResponse(5, map[string]string{"title": "Example"}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"result":{"title":"Example"}}`, string(data))

	data, err = EncodeResponse(6, map[string]string{"ignored": "yes"}, "element not found")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":6,"error":"element not found"}`, string(data))

	data, err = EncodeResponse(8, nil, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":8}`, string(data))
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name       string
		frame      string
		wantOK     bool
		wantID     int64
		wantResult string
		wantError  string
	}{
		{name: "result", frame: `{"id":3,"result":{"ok":true}}`, wantOK: true, wantID: 3, wantResult: `{"ok":true}`},
		{name: "string result", frame: `{"id":4,"result":"https://example.com"}`, wantOK: true, wantID: 4, wantResult: `"https://example.com"`},
		{name: "no result", frame: `{"id":5}`, wantOK: true, wantID: 5},
		{name: "error string", frame: `{"id":6,"error":"No connected tab"}`, wantOK: true, wantID: 6, wantError: "No connected tab"},
		{name: "error object", frame: `{"id":7,"error":{"message":"boom","code":1}}`, wantOK: true, wantID: 7, wantError: "boom"},
		{name: "error wins over result", frame: `{"id":8,"result":1,"error":"bad"}`, wantOK: true, wantID: 8, wantError: "bad"},
		{name: "falsy error ignored", frame: `{"id":9,"result":1,"error":null}`, wantOK: true, wantID: 9, wantResult: `1`},
		{name: "false error ignored", frame: `{"id":10,"result":2,"error":false}`, wantOK: true, wantID: 10, wantResult: `2`},
		{name: "unknown fields ignored", frame: `{"id":11,"result":true,"trace":"x","v":2}`, wantOK: true, wantID: 11, wantResult: `true`},
		{name: "missing id", frame: `{"result":true}`},
		{name: "string id", frame: `{"id":"12","result":true}`},
		{name: "fractional id", frame: `{"id":1.5,"result":true}`},
		{name: "truncated", frame: `{"id":13,"resu`},
		{name: "array", frame: `[1,2,3]`},
		{name: "empty", frame: ``},
		{name: "garbage", frame: "\x00\x01not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := DecodeResponse([]byte(tt.frame))
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantID, resp.ID)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantError != "", resp.IsError())
			if tt.wantResult == "" {
				assert.Empty(t, resp.Result)
			} else {
				assert.JSONEq(t, tt.wantResult, string(resp.Result))
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	req, ok := DecodeRequest([]byte(`{"id":1,"type":"browser_click","payload":{"element":"Submit","ref":"e4"},"extra":1}`))
	require.True(t, ok)
	assert.Equal(t, int64(1), req.ID)
	assert.Equal(t, "browser_click", req.Type)
	assert.JSONEq(t, `{"element":"Submit","ref":"e4"}`, string(req.Payload))

	req, ok = DecodeRequest([]byte(`{"id":2,"type":"getUrl"}`))
	require.True(t, ok)
	assert.JSONEq(t, `{}`, string(req.Payload))

	_, ok = DecodeRequest([]byte(`{"id":3}`))
	assert.False(t, ok, "request without type must be discarded")

	_, ok = DecodeRequest([]byte(`{"type":"getUrl"}`))
	assert.False(t, ok, "request without id must be discarded")
}

func TestRequestRoundTripThroughDecoder(t *testing.T) {
	data, err := EncodeRequest(42, "browser_type", map[string]any{"element": "Search", "ref": "e2", "text": "go", "submit": true})
	require.NoError(t, err)

	req, ok := DecodeRequest(data)
	require.True(t, ok)
	assert.Equal(t, int64(42), req.ID)
	assert.Equal(t, "browser_type", req.Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Payload, &payload))
	assert.Equal(t, true, payload["submit"])
}
