package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// JSON-RPC methods used by the indexer.
const (
	methodGetBlock         = "condenser_api.get_block"
	methodGetAccounts      = "condenser_api.get_accounts"
	methodGetDGPO          = "condenser_api.get_dynamic_global_properties"
	methodGetFeedHistory   = "condenser_api.get_feed_history"
	methodGetOrderBook     = "condenser_api.get_order_book"
	methodGetContent       = "condenser_api.get_content"
	jsonrpcVersion         = "2.0"
	jsonrpcPath            = ""
	maxAccountsPerRequest  = 1000
	maxContentPerBatchCall = 100
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call issues a single JSON-RPC request and decodes result into out.
func (c *HTTPClient) call(ctx context.Context, method string, params any, out any) error {
	req := rpcRequest{JSONRPC: jsonrpcVersion, Method: method, Params: params, ID: c.requestID.Add(1)}
	var resp rpcResponse
	if err := c.doJSON(ctx, http.MethodPost, jsonrpcPath, req, &resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// callBatch sends one JSON-RPC batch with a call per params entry and
// returns the raw results in request order.
func (c *HTTPClient) callBatch(ctx context.Context, method string, params []any) ([]json.RawMessage, error) {
	if len(params) == 0 {
		return nil, nil
	}
	reqs := make([]rpcRequest, len(params))
	index := make(map[uint64]int, len(params))
	for i, p := range params {
		id := c.requestID.Add(1)
		reqs[i] = rpcRequest{JSONRPC: jsonrpcVersion, Method: method, Params: p, ID: id}
		index[id] = i
	}

	var resps []rpcResponse
	if err := c.doJSON(ctx, http.MethodPost, jsonrpcPath, reqs, &resps); err != nil {
		return nil, fmt.Errorf("%s batch: %w", method, err)
	}
	if len(resps) != len(reqs) {
		return nil, fmt.Errorf("%s batch: expected %d responses, got %d", method, len(reqs), len(resps))
	}

	out := make([]json.RawMessage, len(params))
	for _, r := range resps {
		i, ok := index[r.ID]
		if !ok {
			return nil, fmt.Errorf("%s batch: unexpected response id %d", method, r.ID)
		}
		if r.Error != nil {
			return nil, fmt.Errorf("%s batch item %d: %w", method, i, r.Error)
		}
		out[i] = r.Result
	}
	return out, nil
}
