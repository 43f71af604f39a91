package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/adbctl/utils"
)

const (
	// Parse error: Invalid JSON was received by the server
	ErrCodeParseError = -32700

	// Invalid Request: The JSON sent is not a valid Request object
	ErrCodeInvalidRequest = -32600

	// Method not found: The method does not exist / is not available
	ErrCodeMethodNotFound = -32601

	// Server error: Internal JSON-RPC error
	ErrCodeServerError = -32000
)

// Server timeouts
const (
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 60 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 5 * time.Second
)

// ShutdownMethod stops the server after the response is written.
const ShutdownMethod = "server.shutdown"

var callMu sync.Mutex

type JSONRPCRequest struct {
	// these fields are all omitempty, so we can report back to client if they are missing
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func newError(code int, message string, data interface{}) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message, Data: data}
}

// validateJSONRPCRequest returns nil for a well-formed request.
func validateJSONRPCRequest(req JSONRPCRequest) *JSONRPCError {
	if req.JSONRPC != "2.0" {
		return newError(ErrCodeInvalidRequest, "Invalid Request", "'jsonrpc' must be '2.0'")
	}
	if req.ID == nil {
		return newError(ErrCodeInvalidRequest, "Invalid Request", "'id' field is required")
	}
	if req.Method == "" {
		return newError(ErrCodeInvalidRequest, "Invalid Request", "'method' is required")
	}
	return nil
}

// callMethod runs a validated request. shutdown may be nil, in which case
// ShutdownMethod is not available.
func callMethod(req JSONRPCRequest, shutdown func()) (interface{}, *JSONRPCError) {
	if req.Method == ShutdownMethod {
		if shutdown == nil {
			return nil, newError(ErrCodeMethodNotFound, "Method not found", fmt.Sprintf("Method '%s' not found", req.Method))
		}
		shutdown()
		return okResponse, nil
	}

	handler, exists := GetMethodRegistry()[req.Method]
	if !exists {
		return nil, newError(ErrCodeMethodNotFound, "Method not found", fmt.Sprintf("Method '%s' not found", req.Method))
	}

	// controllers are not safe for concurrent use
	callMu.Lock()
	result, err := handler(req.Params)
	callMu.Unlock()
	if err != nil {
		utils.Verbose("Error executing method %s: %v", req.Method, err)
		return nil, newError(ErrCodeServerError, "Server error", err.Error())
	}
	return result, nil
}

// corsMiddleware handles CORS preflight requests and adds CORS headers to responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewHandler builds the HTTP handler serving "/", "/rpc" and "/ws".
func NewHandler(enableCORS bool, shutdown func()) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", sendBanner)
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		handleJSONRPC(w, r, shutdown)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, enableCORS, shutdown)
	})

	if enableCORS {
		return corsMiddleware(mux)
	}
	return mux
}

// normalizeListenAddress turns a bare port into ":port".
func normalizeListenAddress(addr string) (string, error) {
	if strings.Contains(addr, ":") {
		return addr, nil
	}
	port, err := strconv.Atoi(addr)
	if err != nil {
		return "", fmt.Errorf("invalid port: %v", err)
	}
	return fmt.Sprintf(":%d", port), nil
}

// StartServer serves JSON-RPC on addr until a shutdown request arrives.
func StartServer(addr string, enableCORS bool) error {
	addr, err := normalizeListenAddress(addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         addr,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	shutdown := func() {
		go func() {
			utils.Info("Shutdown requested, stopping server")
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				utils.Warn("server shutdown: %v", err)
			}
		}()
	}
	server.Handler = NewHandler(enableCORS, shutdown)

	utils.Info("Starting server on http://%s...", server.Addr)
	err = server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func handleJSONRPC(w http.ResponseWriter, r *http.Request, shutdown func()) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONRPCError(w, nil, newError(ErrCodeParseError, "Parse error", "expecting jsonrpc payload"))
		return
	}

	if rpcErr := validateJSONRPCRequest(req); rpcErr != nil {
		sendJSONRPCError(w, req.ID, rpcErr)
		return
	}

	utils.Info("Request ID: %v, Method: %s, Params: %s", req.ID, req.Method, string(req.Params))

	result, rpcErr := callMethod(req, shutdown)
	if rpcErr != nil {
		sendJSONRPCError(w, req.ID, rpcErr)
		return
	}

	sendJSONRPCResponse(w, req.ID, result)
}

func sendJSONRPCResponse(w http.ResponseWriter, id interface{}, result interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendJSONRPCError(w http.ResponseWriter, id interface{}, rpcErr *JSONRPCError) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   rpcErr,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(okResponse)
}
