// Package wsrpc serves the remote procedure-call surface over a
// websocket. Each connection is handled independently; frames are
// dispatched to the in-process server.Service.
package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/recallhq/recall-go-sdk/remote"
	rpc "github.com/recallhq/recall-go-sdk/remote/wsrpc"
	"github.com/recallhq/recall-go-sdk/server"
)

// Handler upgrades HTTP requests to websocket RPC sessions.
type Handler struct {
	svc      *server.Service
	upgrader websocket.Upgrader
}

// NewHandler creates a handler over the given service.
func NewHandler(svc *server.Service) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()
	log.Debug("client connected", "remote", r.RemoteAddr)

	// Requests on one connection may run concurrently; writes must not.
	var writeMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var req rpc.Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("connection closed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}

		wg.Add(1)
		go func(req rpc.Request) {
			defer wg.Done()
			resp := h.dispatch(r.Context(), req)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(resp); err != nil {
				log.Warn("write response failed", "remote", r.RemoteAddr, "err", err)
			}
		}(req)
	}
}

func (h *Handler) dispatch(ctx context.Context, req rpc.Request) rpc.Response {
	result, err := h.invoke(ctx, req.Method, req.Params)
	if err != nil {
		return rpc.Response{ID: req.ID, Error: err.Error()}
	}
	return rpc.Response{ID: req.ID, Result: result}
}

func (h *Handler) invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case rpc.MethodChatCreate:
		var p rpc.ChatParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.svc.CreateChat(ctx, p.Chat)

	case rpc.MethodChatUpdate:
		var p rpc.ChatParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.svc.UpdateChat(ctx, p.Chat)

	case rpc.MethodChatDelete:
		var p rpc.ChatDeleteParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.svc.DeleteChat(ctx, p.ChatID)

	case rpc.MethodMessageCreate:
		var p rpc.MessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.svc.CreateMessage(ctx, p.Message)

	case rpc.MethodMemoryAdd:
		var p rpc.MemoryAddParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.svc.AddMemory(ctx, p.ChatID, p.Content, p.Metadata)

	case rpc.MethodMemoryList:
		var p rpc.MemoryListParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		entries, err := h.svc.GetMemories(ctx, p.ChatID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rpc.MemoriesResult{Entries: entries})

	case rpc.MethodMemorySearch:
		var p rpc.MemorySearchParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		entries, err := h.svc.SearchMemories(ctx, p.ChatID, p.Query, p.Limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rpc.MemoriesResult{Entries: entries})

	case rpc.MethodSummarize:
		var p rpc.SummarizeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		summary, err := h.svc.SummarizeHistory(ctx, p.ChatID, p.History)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rpc.SummaryResult{Summary: remote.EncodeSummary(summary), Found: true})

	case rpc.MethodSummaryUpsert:
		var p rpc.SummaryUpsertParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.svc.UpsertSummary(ctx, remote.DecodeSummary(p.Summary))

	case rpc.MethodSummaryGet:
		var p rpc.SummaryGetParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		summary, found, err := h.svc.GetSummary(ctx, p.ChatID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rpc.SummaryResult{Summary: remote.EncodeSummary(summary), Found: found})

	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}
