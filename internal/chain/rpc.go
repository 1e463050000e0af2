/*

This file contains a minimal Tendermint JSON-RPC client for ABCI queries. Requests are gogo-proto
messages sent hex encoded through "abci_query"; the base64 response value is decoded back into a
proto message.

*/

package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/rs/zerolog"

	"github.com/elys-network/hfvault/internal/logger"
)

const rpcTimeout = 20 * time.Second

// JSONRPCRequest defines the structure of a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  ABCIQueryParams `json:"params"`
}

// ABCIQueryParams defines the parameters for the "abci_query" method.
type ABCIQueryParams struct {
	Path   string `json:"path"`
	Data   string `json:"data"` // Hex-encoded string
	Height string `json:"height,omitempty"`
	Prove  bool   `json:"prove,omitempty"`
}

// JSONRPCResponse defines the structure of a JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  ABCIQueryResult `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// ABCIQueryResult defines the structure of the "result" field for "abci_query".
type ABCIQueryResult struct {
	Response struct {
		Log    string `json:"log"`
		Key    string `json:"key"`   // Base64 encoded
		Value  string `json:"value"` // Base64 encoded
		Height string `json:"height"`
		Code   uint32 `json:"code"`
	} `json:"response"`
}

// JSONRPCError defines the structure of a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// ABCIClient runs ABCI queries against one node.
type ABCIClient struct {
	endpoint string
	http     *http.Client
	logger   zerolog.Logger
	nextID   atomic.Int64
}

// NewABCIClient creates a client for endpoint. A nil httpClient gets a 20s timeout client.
func NewABCIClient(endpoint string, httpClient *http.Client) *ABCIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: rpcTimeout}
	}
	return &ABCIClient{
		endpoint: endpoint,
		http:     httpClient,
		logger:   logger.GetForComponent("abci_client"),
	}
}

// Query sends req to abciPath and unmarshals the result into resp.
func (c *ABCIClient) Query(ctx context.Context, abciPath string, req, resp proto.Message) error {
	protoBytes, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal gRPC request: %w", err)
	}

	jsonData, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "abci_query",
		Params: ABCIQueryParams{
			Path: abciPath,
			Data: hex.EncodeToString(protoBytes),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal JSON-RPC request: %w", err)
	}

	c.logger.Debug().
		Str("endpoint", c.endpoint).
		Str("abciPath", abciPath).
		Msg("Executing RPC query")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("abciPath", abciPath).Msg("Failed to send HTTP request")
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("RPC endpoint returned HTTP %d", httpResp.StatusCode)
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		c.logger.Error().Err(err).Str("body", string(body)).Msg("Failed to unmarshal JSON-RPC response")
		return fmt.Errorf("failed to unmarshal JSON-RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		c.logger.Error().
			Int("code", rpcResp.Error.Code).
			Str("message", rpcResp.Error.Message).
			Msg("RPC error received")
		return fmt.Errorf("RPC error: %s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if rpcResp.Result.Response.Code != 0 {
		c.logger.Error().
			Uint32("code", rpcResp.Result.Response.Code).
			Str("log", rpcResp.Result.Response.Log).
			Msg("ABCI query error")
		return fmt.Errorf("ABCI query error (code %d): %s", rpcResp.Result.Response.Code, rpcResp.Result.Response.Log)
	}
	if rpcResp.Result.Response.Value == "" {
		return fmt.Errorf("empty ABCI query result: %s", rpcResp.Result.Response.Log)
	}

	value, err := base64.StdEncoding.DecodeString(rpcResp.Result.Response.Value)
	if err != nil {
		return fmt.Errorf("failed to decode base64 result: %w", err)
	}
	if err := proto.Unmarshal(value, resp); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", abciPath, err)
	}
	return nil
}
