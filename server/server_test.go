package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postRPC(t *testing.T, handler http.Handler, body string) JSONRPCResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp JSONRPCResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestSendBanner(t *testing.T) {
	w := httptest.NewRecorder()
	NewHandler(false, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var data map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&data))
	assert.Equal(t, "ok", data["status"])
}

func TestRPCEndpointRejectsGet(t *testing.T) {
	w := httptest.NewRecorder()
	NewHandler(false, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestJSONRPCValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantData string
	}{
		{"invalid json", `{not json`, ErrCodeParseError, "expecting jsonrpc payload"},
		{"wrong version", `{"jsonrpc":"1.0","method":"devices","id":1}`, ErrCodeInvalidRequest, "'jsonrpc' must be '2.0'"},
		{"missing id", `{"jsonrpc":"2.0","method":"devices"}`, ErrCodeInvalidRequest, "'id' field is required"},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, ErrCodeInvalidRequest, "'method' is required"},
		{"unknown method", `{"jsonrpc":"2.0","method":"apps_list","id":1}`, ErrCodeMethodNotFound, "Method 'apps_list' not found"},
		{"shutdown unavailable", `{"jsonrpc":"2.0","method":"server.shutdown","id":1}`, ErrCodeMethodNotFound, "server.shutdown"},
	}

	handler := NewHandler(false, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRPC(t, handler, tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "2.0", resp.JSONRPC)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Contains(t, resp.Error.Data, tt.wantData)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestParamsValidatedBeforeDeviceLookup(t *testing.T) {
	tests := []struct {
		name   string
		method string
		params string
		want   string
	}{
		{"tap without params", "io_tap", ``, "'params' is required with fields: deviceId, x, y"},
		{"tap without y", "io_tap", `{"deviceId":"emulator-5554","x":10}`, "'y' is required"},
		{"swipe without x2", "io_swipe", `{"x1":1,"y1":2,"y2":4}`, "'x2' is required"},
		{"tap with string x", "io_tap", `{"x":"ten","y":1}`, "invalid parameters"},
		{"empty text", "io_text", `{"text":""}`, "text is required"},
		{"unknown button", "io_button", `{"button":"SELFIE"}`, "SELFIE"},
		{"bad screenshot format", "screenshot", `{"format":"gif"}`, "invalid format 'gif'"},
		{"connect without address", "connect", `{}`, "address is required"},
		{"empty shell", "shell", `{"command":[]}`, "command is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Execute(tt.method, json.RawMessage(tt.params))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExecuteUnknownMethod(t *testing.T) {
	_, err := Execute("dump_ui", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestShutdownMethod(t *testing.T) {
	var calls atomic.Int32
	handler := NewHandler(false, func() { calls.Add(1) })

	resp := postRPC(t, handler, `{"jsonrpc":"2.0","method":"server.shutdown","id":"stop"}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "stop", resp.ID)
	assert.Equal(t, map[string]interface{}{"status": "ok"}, resp.Result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendJSONRPCResponse(t *testing.T) {
	w := httptest.NewRecorder()
	sendJSONRPCResponse(w, 7, map[string]string{"hello": "world"})

	var resp JSONRPCResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, float64(7), resp.ID)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]interface{}{"hello": "world"}, resp.Result)
}

func TestSendJSONRPCErrorOmitsResult(t *testing.T) {
	w := httptest.NewRecorder()
	sendJSONRPCError(w, nil, newError(ErrCodeServerError, "Server error", "boom"))

	body := w.Body.String()
	assert.NotContains(t, body, `"result"`)
	assert.Contains(t, body, `"id":null`)
	assert.Contains(t, body, `"code":-32000`)
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		enableCORS bool
		method     string
		wantHeader string
		wantStatus int
	}{
		{"preflight with cors", true, http.MethodOptions, "*", http.StatusOK},
		{"banner with cors", true, http.MethodGet, "*", http.StatusOK},
		{"banner without cors", false, http.MethodGet, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHandler(tt.enableCORS, nil).ServeHTTP(w, httptest.NewRequest(tt.method, "/", bytes.NewReader(nil)))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestNormalizeListenAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"12000", ":12000", false},
		{"localhost:12000", "localhost:12000", false},
		{"0.0.0.0:13000", "0.0.0.0:13000", false},
		{"localhost", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeListenAddress(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
