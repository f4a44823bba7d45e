package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mimicbot/mimic/internal/bus"
	"github.com/mimicbot/mimic/pkg/logger"
)

type mockConn struct {
	reads chan wireEvent

	mu     sync.Mutex
	writes []wireEvent
	closed bool
}

func newMockConn() *mockConn {
	return &mockConn{reads: make(chan wireEvent, 16)}
}

func (m *mockConn) ReadJSON(v any) error {
	ev, ok := <-m.reads
	if !ok {
		return io.EOF
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	m.mu.Lock()
	m.writes = append(m.writes, ev)
	m.mu.Unlock()
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.reads)
	}
	return nil
}

func (m *mockConn) written() []wireEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wireEvent, len(m.writes))
	copy(out, m.writes)
	return out
}

func connectServer(t *testing.T, resp connectResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rtm.connect" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("token") == "" {
			t.Error("handshake missing token")
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func okResponse() connectResponse {
	var resp connectResponse
	resp.OK = true
	resp.URL = "wss://example.invalid/socket"
	resp.Self.ID = "B0T"
	resp.Self.Name = "mimic"
	resp.Team.ID = "T1"
	return resp
}

func startTestTransport(t *testing.T, resp connectResponse) (*Slack, *mockConn, *bus.MessageBus) {
	t.Helper()
	conn := newMockConn()
	b := bus.NewMessageBus(16)
	s, err := NewWithDialer("xoxb-test", b, logger.NewNop(), func(string) (Conn, error) {
		return conn, nil
	})
	if err != nil {
		t.Fatalf("NewWithDialer error: %v", err)
	}
	s.SetAPIURL(connectServer(t, resp).URL)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s, conn, b
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New("", bus.NewMessageBus(1), logger.NewNop())
	if err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestStart_PublishesIdentity(t *testing.T) {
	_, _, b := startTestTransport(t, okResponse())

	select {
	case id := <-b.Connected:
		if id.ID != "B0T" || id.Name != "mimic" {
			t.Errorf("identity = %+v", id)
		}
	case <-time.After(time.Second):
		t.Fatal("identity never published")
	}
}

func TestStart_HandshakeRefused(t *testing.T) {
	resp := connectResponse{OK: false, Error: "invalid_auth"}
	conn := newMockConn()
	s, err := NewWithDialer("xoxb-bad", bus.NewMessageBus(1), logger.NewNop(), func(string) (Conn, error) {
		return conn, nil
	})
	if err != nil {
		t.Fatalf("NewWithDialer error: %v", err)
	}
	s.SetAPIURL(connectServer(t, resp).URL)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for refused handshake")
	}
}

func TestReadLoop_MessageEventsReachBus(t *testing.T) {
	_, conn, b := startTestTransport(t, okResponse())
	<-b.Connected

	conn.reads <- wireEvent{Type: "user_typing", Channel: "C1", User: "U1"}
	conn.reads <- wireEvent{
		Type: "message", Subtype: "me_message",
		Channel: "C1", User: "U1", Text: "hi there", Ts: "123.456",
	}

	select {
	case msg := <-b.Inbound:
		if msg.Type != "message" || msg.Subtype != "me_message" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.User != "U1" || msg.Channel != "C1" || msg.Text != "hi there" || msg.Ts != "123.456" {
			t.Errorf("msg = %+v, field mismatch", msg)
		}
		if msg.Team != "T1" {
			t.Errorf("team = %q, want handshake team T1", msg.Team)
		}
	case <-time.After(time.Second):
		t.Fatal("message event never reached the bus")
	}

	select {
	case msg := <-b.Inbound:
		t.Fatalf("non-message event leaked to the bus: %+v", msg)
	default:
	}
}

func TestReadLoop_PingAnsweredWithPong(t *testing.T) {
	_, conn, b := startTestTransport(t, okResponse())
	<-b.Connected

	conn.reads <- wireEvent{Type: "ping", ID: 7}

	deadline := time.After(time.Second)
	for {
		for _, w := range conn.written() {
			if w.Type == "pong" {
				if w.ReplyTo != 7 {
					t.Errorf("pong reply_to = %d, want 7", w.ReplyTo)
				}
				return
			}
		}
		select {
		case <-deadline:
			t.Fatal("ping never answered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestReadLoop_TerminalErrorSurfaced(t *testing.T) {
	s, conn, b := startTestTransport(t, okResponse())
	<-b.Connected

	_ = conn.Close()

	select {
	case err := <-s.Errors:
		if err == nil {
			t.Fatal("expected a non-nil terminal error")
		}
	case <-time.After(time.Second):
		t.Fatal("read-loop error never surfaced")
	}
}

func TestSendMessage_IncrementingIDs(t *testing.T) {
	s, conn, b := startTestTransport(t, okResponse())
	<-b.Connected

	if err := s.SendMessage("one", "C1"); err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if err := s.Send(bus.OutboundMessage{Channel: "C2", Text: "two"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	writes := conn.written()
	if len(writes) != 2 {
		t.Fatalf("wrote %d frames, want 2", len(writes))
	}
	if writes[0].Type != "message" || writes[0].Channel != "C1" || writes[0].Text != "one" {
		t.Errorf("frame 0 = %+v", writes[0])
	}
	if writes[1].Channel != "C2" || writes[1].Text != "two" {
		t.Errorf("frame 1 = %+v", writes[1])
	}
	if writes[0].ID >= writes[1].ID {
		t.Errorf("message ids not increasing: %d then %d", writes[0].ID, writes[1].ID)
	}
}

func TestSendMessage_NotConnected(t *testing.T) {
	s, err := NewWithDialer("xoxb-test", bus.NewMessageBus(1), logger.NewNop(), func(string) (Conn, error) {
		return newMockConn(), nil
	})
	if err != nil {
		t.Fatalf("NewWithDialer error: %v", err)
	}
	if err := s.SendMessage("x", "C1"); err == nil {
		t.Fatal("expected error before connect")
	}
}
