// Package vmservicetest provides an in-process debug service for tests.
package vmservicetest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/skobkin/lspreport/internal/vmservice"
)

// Handler answers one method. Returning a non-nil RPCError sends an error response.
type Handler func(params json.RawMessage) (any, *vmservice.RPCError)

// Server is a fake debug service speaking JSON-RPC over WebSocket.
type Server struct {
	*httptest.Server

	// Notify, when set, is sent as a stream notification before every response.
	Notify any

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []string
	conns    int
	closed   int
}

// NewServer starts a fake service. It is closed automatically with the test.
func NewServer(t *testing.T, handlers map[string]Handler) *Server {
	t.Helper()
	s := &Server{handlers: handlers}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// URI returns the ws:// address of the service.
func (s *Server) URI() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/tok=/ws"
}

// Calls lists the methods received so far, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Connections reports how many connections were accepted and how many were
// closed by the client.
func (s *Server) Connections() (accepted, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns, s.closed
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(64 << 20)
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()

	ctx := r.Context()
	for {
		var req struct {
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.mu.Lock()
				s.closed++
				s.mu.Unlock()
			}
			return
		}

		s.mu.Lock()
		s.calls = append(s.calls, req.Method)
		handler := s.handlers[req.Method]
		notify := s.Notify
		s.mu.Unlock()

		if notify != nil {
			if err := wsjson.Write(ctx, conn, map[string]any{
				"jsonrpc": "2.0",
				"method":  "streamNotify",
				"params":  notify,
			}); err != nil {
				return
			}
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if handler == nil {
			resp["error"] = &vmservice.RPCError{Code: -32601, Message: "Method not found"}
		} else {
			result, rpcErr := handler(req.Params)
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
		}
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			return
		}
	}
}

// IsolateID decodes the isolateId parameter of a request.
func IsolateID(params json.RawMessage) string {
	var p struct {
		IsolateID string `json:"isolateId"`
	}
	_ = json.Unmarshal(params, &p)
	return p.IsolateID
}

// Hang returns a handler that blocks until ctx is done, for timeout tests.
func Hang(ctx context.Context) Handler {
	return func(json.RawMessage) (any, *vmservice.RPCError) {
		<-ctx.Done()
		return nil, &vmservice.RPCError{Code: -32000, Message: "cancelled"}
	}
}
