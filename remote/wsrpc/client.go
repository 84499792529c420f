package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
	"github.com/recallhq/recall-go-sdk/remote"
)

// Client is the websocket implementation of remote.Client. One
// connection multiplexes concurrent calls; responses are correlated by
// request ID.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan Response
	closed  bool

	nextID atomic.Uint64
	done   chan struct{}
}

// Dial connects to a server handler at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, core.ErrRemoteUnavailable)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection. In-flight calls fail with
// core.ErrRemoteUnavailable.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var resp Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.failAll()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// failAll marks the connection dead and abandons every pending call.
func (c *Client) failAll() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]chan Response)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// call performs one request/response round trip. result may be nil for
// calls whose reply carries no payload.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%s: marshal params: %w", method, err)
	}

	id := c.nextID.Add(1)
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", method, core.ErrRemoteUnavailable)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(Request{ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", method, core.ErrRemoteUnavailable)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", method, core.ErrRemoteUnavailable)
		}
		if resp.Error != "" {
			return fmt.Errorf("%s: %s", method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: unmarshal result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// CreateChat implements remote.Client.
func (c *Client) CreateChat(ctx context.Context, chat core.Chat) error {
	return c.call(ctx, MethodChatCreate, ChatParams{Chat: chat}, nil)
}

// UpdateChat implements remote.Client.
func (c *Client) UpdateChat(ctx context.Context, chat core.Chat) error {
	return c.call(ctx, MethodChatUpdate, ChatParams{Chat: chat}, nil)
}

// DeleteChat implements remote.Client.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.call(ctx, MethodChatDelete, ChatDeleteParams{ChatID: chatID}, nil)
}

// CreateMessage implements remote.Client.
func (c *Client) CreateMessage(ctx context.Context, msg core.Message) error {
	return c.call(ctx, MethodMessageCreate, MessageParams{Message: msg}, nil)
}

// AddMemory implements remote.Client.
func (c *Client) AddMemory(ctx context.Context, chatID, content string, metadata map[string]any) error {
	if err := core.ValidateMetadata(metadata); err != nil {
		return err
	}
	return c.call(ctx, MethodMemoryAdd, MemoryAddParams{
		ChatID:   chatID,
		Content:  content,
		Metadata: metadata,
	}, nil)
}

// SummarizeHistory implements remote.Client.
func (c *Client) SummarizeHistory(ctx context.Context, chatID string, history []generation.Message) (core.SmartSummary, error) {
	var res SummaryResult
	err := c.call(ctx, MethodSummarize, SummarizeParams{ChatID: chatID, History: history}, &res)
	if err != nil {
		return core.SmartSummary{}, err
	}
	return remote.DecodeSummary(res.Summary), nil
}

// UpsertSummary implements remote.Client.
func (c *Client) UpsertSummary(ctx context.Context, summary core.SmartSummary) error {
	return c.call(ctx, MethodSummaryUpsert, SummaryUpsertParams{
		Summary: remote.EncodeSummary(summary),
	}, nil)
}

// GetSummary implements remote.Client.
func (c *Client) GetSummary(ctx context.Context, chatID string) (core.SmartSummary, bool, error) {
	var res SummaryResult
	err := c.call(ctx, MethodSummaryGet, SummaryGetParams{ChatID: chatID}, &res)
	if err != nil {
		return core.SmartSummary{}, false, err
	}
	if !res.Found {
		return core.SmartSummary{}, false, nil
	}
	return remote.DecodeSummary(res.Summary), true, nil
}

// GetMemories implements remote.Client.
func (c *Client) GetMemories(ctx context.Context, chatID string) ([]core.MemoryEntry, error) {
	var res MemoriesResult
	if err := c.call(ctx, MethodMemoryList, MemoryListParams{ChatID: chatID}, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// SearchMemories implements remote.Client.
func (c *Client) SearchMemories(ctx context.Context, chatID, query string, limit int) ([]core.MemoryEntry, error) {
	var res MemoriesResult
	err := c.call(ctx, MethodMemorySearch, MemorySearchParams{
		ChatID: chatID,
		Query:  query,
		Limit:  limit,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

var _ remote.Client = (*Client)(nil)
