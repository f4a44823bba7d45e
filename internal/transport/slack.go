// Package transport maintains the realtime connection to the chat platform
// and converts wire events into bus messages.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mimicbot/mimic/internal/bus"
	"github.com/mimicbot/mimic/pkg/logger"
)

const slackTransportName = "slack"

// DefaultAPIURL is the RTM handshake endpoint. Overridable for tests.
const DefaultAPIURL = "https://slack.com/api"

// Conn is the websocket surface used by the transport (allows mocking).
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer opens the event socket (allows mocking).
type Dialer func(wsURL string) (Conn, error)

var defaultDialer Dialer = func(wsURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type connectResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url"`
	Self  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"self"`
	Team struct {
		ID string `json:"id"`
	} `json:"team"`
}

type wireEvent struct {
	ID      int64  `json:"id,omitempty"`
	ReplyTo int64  `json:"reply_to,omitempty"`
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Channel string `json:"channel,omitempty"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`
	Ts      string `json:"ts,omitempty"`
	Team    string `json:"team,omitempty"`
}

// Slack connects to the platform's realtime API, publishes the resolved
// identity and inbound messages on the bus, and sends replies.
type Slack struct {
	token   string
	apiURL  string
	httpc   *http.Client
	bus     *bus.MessageBus
	dial    Dialer
	log     *logger.Logger
	conn    Conn
	writeMu sync.Mutex
	msgID   atomic.Int64
	cancel  context.CancelFunc

	// Errors receives the terminal read-loop error, once.
	Errors chan error
}

func New(token string, b *bus.MessageBus, log *logger.Logger) (*Slack, error) {
	return NewWithDialer(token, b, log, defaultDialer)
}

// NewWithDialer creates a Slack transport with a custom dialer (for testing).
func NewWithDialer(token string, b *bus.MessageBus, log *logger.Logger, dial Dialer) (*Slack, error) {
	if token == "" {
		return nil, fmt.Errorf("transport token is required")
	}
	return &Slack{
		token:  token,
		apiURL: DefaultAPIURL,
		httpc:  http.DefaultClient,
		bus:    b,
		dial:   dial,
		log:    log,
		Errors: make(chan error, 1),
	}, nil
}

// SetAPIURL overrides the handshake endpoint (for testing).
func (s *Slack) SetAPIURL(u string) {
	s.apiURL = u
}

func (s *Slack) Name() string {
	return slackTransportName
}

// Start performs the handshake, publishes the bot identity, and begins the
// read loop. It returns once the connection is established.
func (s *Slack) Start(ctx context.Context) error {
	resp, err := s.connect(ctx)
	if err != nil {
		return err
	}

	conn, err := s.dial(resp.URL)
	if err != nil {
		return fmt.Errorf("dial event socket: %w", err)
	}
	s.conn = conn

	ctx, s.cancel = context.WithCancel(ctx)

	s.bus.Connected <- bus.Identity{Name: resp.Self.Name, ID: resp.Self.ID}
	s.log.Info("connected", zap.String("self", resp.Self.Name), zap.String("team", resp.Team.ID))

	go s.readLoop(ctx, resp.Team.ID)
	return nil
}

func (s *Slack) connect(ctx context.Context) (*connectResponse, error) {
	form := url.Values{"token": {s.token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/rtm.connect", nil)
	if err != nil {
		return nil, fmt.Errorf("build connect request: %w", err)
	}
	req.URL.RawQuery = form.Encode()

	httpResp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rtm connect: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rtm connect: unexpected status %d", httpResp.StatusCode)
	}

	var resp connectResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode connect response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("rtm connect refused: %s", resp.Error)
	}
	if resp.URL == "" || resp.Self.ID == "" {
		return nil, fmt.Errorf("rtm connect: incomplete response")
	}
	return &resp, nil
}

func (s *Slack) readLoop(ctx context.Context, teamID string) {
	for {
		var ev wireEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				s.log.Error("read loop terminated", zap.Error(err))
				select {
				case s.Errors <- err:
				default:
				}
			}
			return
		}

		switch ev.Type {
		case "ping":
			if err := s.writeJSON(wireEvent{Type: "pong", ReplyTo: ev.ID}); err != nil {
				s.log.Warn("pong failed", zap.Error(err))
			}
		case "message":
			team := ev.Team
			if team == "" {
				team = teamID
			}
			msg := bus.ChatMessage{
				Type:    ev.Type,
				Subtype: ev.Subtype,
				Channel: ev.Channel,
				User:    ev.User,
				Text:    ev.Text,
				Ts:      ev.Ts,
				Team:    team,
			}
			select {
			case s.bus.Inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Send delivers one outbound message over the event socket.
func (s *Slack) Send(msg bus.OutboundMessage) error {
	return s.SendMessage(msg.Text, msg.Channel)
}

// SendMessage posts text into a channel.
func (s *Slack) SendMessage(text, channel string) error {
	if s.conn == nil {
		return fmt.Errorf("transport not connected")
	}
	return s.writeJSON(wireEvent{
		ID:      s.msgID.Add(1),
		Type:    "message",
		Channel: channel,
		Text:    text,
	})
}

func (s *Slack) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// SetConn sets the socket (for testing).
func (s *Slack) SetConn(c Conn) {
	s.conn = c
}

func (s *Slack) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.log.Info("stopped")
	return nil
}
