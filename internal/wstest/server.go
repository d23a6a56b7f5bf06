// Package wstest runs an in-process WebSocket endpoint that speaks the
// {event, data} frame format, for exercising the client against a real
// gorilla/websocket peer.
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server accepts WebSocket upgrades, records every inbound text frame and
// can push frames to or drop every live peer.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	peers    map[*peer]struct{}
	received [][]byte
	headers  []http.Header
	notify   chan struct{}

	rejecting atomic.Bool
	accepted  atomic.Int64
}

func NewServer() *Server {
	s := &Server{
		peers:  make(map[*peer]struct{}),
		notify: make(chan struct{}, 1),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the ws:// address of the endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

// Reject makes subsequent upgrades fail with 503 until called with false.
func (s *Server) Reject(reject bool) {
	s.rejecting.Store(reject)
}

// Accepted is the number of upgrades completed so far.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Received returns a copy of every frame read so far, in arrival order.
func (s *Server) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// WaitReceived blocks until at least n frames have arrived or timeout
// elapses, and reports whether n was reached.
func (s *Server) WaitReceived(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		s.mu.Lock()
		got := len(s.received)
		s.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-s.notify:
		case <-deadline.C:
			return false
		}
	}
}

// LastHeaders returns the headers of the most recent upgrade request.
func (s *Server) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		return nil
	}
	return s.headers[len(s.headers)-1]
}

// Push writes a raw text frame to every live peer.
func (s *Server) Push(raw []byte) {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.write(raw)
	}
}

// PushEvent encodes and pushes an {event, data} frame.
func (s *Server) PushEvent(event string, data any) error {
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		return err
	}
	s.Push(raw)
	return nil
}

// DropAll closes every live peer's TCP connection without a close frame.
func (s *Server) DropAll() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[*peer]struct{})
	s.mu.Unlock()

	for p := range peers {
		p.close()
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if s.rejecting.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(conn)
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()
	s.accepted.Add(1)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.TextMessage {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}

	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	p.close()
}

// peer serializes writes to one connection through a write pump.
type peer struct {
	conn    *websocket.Conn
	sendCh  chan []byte
	closeCh chan struct{}
	writeWg sync.WaitGroup
	once    sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	p := &peer{
		conn:    conn,
		sendCh:  make(chan []byte, 64),
		closeCh: make(chan struct{}),
	}
	p.writeWg.Add(1)
	go p.writePump()
	return p
}

func (p *peer) writePump() {
	defer p.writeWg.Done()

	for {
		select {
		case <-p.closeCh:
			return
		case message := <-p.sendCh:
			p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}

func (p *peer) write(raw []byte) {
	select {
	case <-p.closeCh:
	case p.sendCh <- raw:
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.closeCh)
		p.writeWg.Wait()
		p.conn.Close()
	})
}
