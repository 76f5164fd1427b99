// Package faketransport is an in-process media-plane control service used
// by integration-style tests, speaking real websocket frames instead of an
// in-memory stub so transport.Client's wire behavior is exercised end to
// end without a live LiveKit deployment.
package faketransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/brightclass/voicetutor/transport"
)

var _ transport.Client = (*Client)(nil)

// Event records a single Dispatch or PublishData call observed by Server.
type Event struct {
	Type      string `json:"type"` // "dispatch" or "publish_data"
	RoomName  string `json:"room_name"`
	AgentName string `json:"agent_name,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

// Server is a minimal websocket endpoint that accepts Event frames and
// records them, standing in for the LiveKit control plane in tests.
type Server struct {
	httpServer *httptest.Server
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	events []Event
}

// NewServer starts a listening Server.
func NewServer() *Server {
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.handle)
	s.httpServer = httptest.NewServer(mux)
	return s
}

// URL returns the server's websocket URL ("ws://...").
func (s *Server) URL() string {
	return "ws" + s.httpServer.URL[len("http"):] + "/control"
}

// Close shuts down the underlying HTTP server.
func (s *Server) Close() { s.httpServer.Close() }

// Events returns a snapshot of every event received so far.
func (s *Server) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var evt Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			continue
		}
		s.mu.Lock()
		s.events = append(s.events, evt)
		s.mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"ok":true}`))
	}
}

// Client is a transport.Client that speaks Server's websocket protocol.
type Client struct {
	url string
}

// NewClient dials no connection eagerly; each call opens and closes its own
// websocket connection, mirroring how a real RPC client treats every
// request independently.
func NewClient(url string) *Client {
	return &Client{url: url}
}

func (c *Client) send(evt Event) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	_, _, err = conn.ReadMessage()
	return err
}

// Dispatch implements transport.Client.
func (c *Client) Dispatch(ctx context.Context, req transport.DispatchRequest) error {
	return c.send(Event{
		Type:      "dispatch",
		RoomName:  req.RoomName,
		AgentName: req.AgentName,
		Metadata:  req.Metadata,
	})
}

// PublishData implements transport.Client.
func (c *Client) PublishData(ctx context.Context, roomName string, data []byte, topic string) error {
	return c.send(Event{
		Type:     "publish_data",
		RoomName: roomName,
		Data:     data,
		Topic:    topic,
	})
}
