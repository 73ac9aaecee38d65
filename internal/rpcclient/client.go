// Package rpcclient is a thin JSON-RPC client over HTTP implementing just
// the two chain RPC calls the engine needs to drive verification and
// polling: get_slot and get_account_info. It does not fetch or decode raw
// transactions; that stays a pluggable chainsource.Decoder per spec.md §1's
// scoping of raw-tx fetch/decode as an external collaborator.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/agentindexer/internal/verify"
)

// Client is a minimal JSON-RPC 2.0 client, grounded on the teacher's
// infrastructure/chain.Client HTTP/timeout plumbing but scoped to the two
// methods the engine actually calls.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     uint64
}

func New(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("rpcclient: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// GetSlot returns the current chain head slot.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetAccountInfo reports whether the account at pda currently exists.
// A null result is treated as "does not exist", not an error.
func (c *Client) GetAccountInfo(ctx context.Context, pda string) (verify.Account, error) {
	var result *struct {
		Lamports uint64 `json:"lamports"`
	}
	if err := c.call(ctx, "getAccountInfo", []any{pda}, &result); err != nil {
		return verify.Account{}, err
	}
	return verify.Account{Exists: result != nil}, nil
}
