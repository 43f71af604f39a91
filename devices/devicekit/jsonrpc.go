package devicekit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const defaultCallTimeout = 5 * time.Second

// message is the JSON-RPC 2.0 envelope in both directions.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  interface{}     `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the agent.
type RPCError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: JSON-RPC error %d: %s", e.Method, e.Code, e.Message)
}

func (c *Client) call(method string, params interface{}) (json.RawMessage, error) {
	return c.callWithTimeout(method, params, defaultCallTimeout)
}

func (c *Client) callWithTimeout(method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.roundTrip(ctx, method, params)
}

func (c *Client) roundTrip(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}

	id, reply, err := c.send(method, params)
	if err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return nil, fmt.Errorf("agent connection closed while waiting for %s", method)
		}
		if resp.Error != nil {
			resp.Error.Method = method
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("timeout waiting for response to %s", method)
	}
}

// send writes the request and registers its reply channel under the same
// lock the read loop takes, so a fast reply is never dropped.
func (c *Client) send(method string, params interface{}) (int64, <-chan message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, nil, fmt.Errorf("agent connection closed before %s", method)
	}

	id := c.requestID.Add(1)
	req := message{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.conn.WriteJSON(req); err != nil {
		return 0, nil, fmt.Errorf("failed to send request to %s: %w", method, err)
	}

	reply := make(chan message, 1)
	c.pending[id] = reply
	return id, reply, nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
