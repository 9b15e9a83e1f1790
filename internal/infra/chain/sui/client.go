package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aquads/indexer/internal/core/domain"
)

// Client queries marketplace events from a Sui fullnode over JSON-RPC.
// It only speaks suix_queryEvents with a MoveModule filter; everything else
// the node offers is out of scope for the indexer.
type Client struct {
	endpoint   string
	packageID  string
	module     string
	httpClient *http.Client
}

// NewClient creates a new Sui JSON-RPC client.
func NewClient(endpoint, packageID, module string, timeout time.Duration) *Client {
	return &Client{
		endpoint:  endpoint,
		packageID: packageID,
		module:    module,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Event is one raw chain event as returned by the node.
type Event struct {
	ID          domain.EventID
	Type        string
	ParsedJSON  map[string]any
	TimestampMs int64
}

// Page is one ascending page of the event stream.
type Page struct {
	Events      []Event
	NextCursor  *domain.EventID
	HasNextPage bool
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type queryEventsResult struct {
	Data []struct {
		ID          domain.EventID `json:"id"`
		Type        string         `json:"type"`
		ParsedJSON  map[string]any `json:"parsedJson"`
		TimestampMs string         `json:"timestampMs"`
	} `json:"data"`
	NextCursor  *domain.EventID `json:"nextCursor"`
	HasNextPage bool            `json:"hasNextPage"`
}

// QueryEvents fetches up to limit events strictly after cursor, ascending.
// A nil cursor starts from the beginning of the stream.
func (c *Client) QueryEvents(
	ctx context.Context,
	cursor *domain.EventID,
	limit int,
) (*Page, error) {
	filter := map[string]any{
		"MoveModule": map[string]string{
			"package": c.packageID,
			"module":  c.module,
		},
	}

	var cursorParam any
	if cursor != nil {
		cursorParam = cursor
	}

	// Last param false = ascending order.
	params := []any{filter, cursorParam, limit, false}

	var result queryEventsResult
	if err := c.call(ctx, "suix_queryEvents", params, &result); err != nil {
		return nil, err
	}

	page := &Page{
		NextCursor:  result.NextCursor,
		HasNextPage: result.HasNextPage,
	}
	for _, e := range result.Data {
		ev := Event{
			ID:         e.ID,
			Type:       e.Type,
			ParsedJSON: e.ParsedJSON,
		}
		if e.TimestampMs != "" {
			if ms, err := strconv.ParseInt(e.TimestampMs, 10, 64); err == nil {
				ev.TimestampMs = ms
			}
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
