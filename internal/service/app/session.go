package app

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"relaychat/internal/model"
	"relaychat/internal/protocol"
	"relaychat/internal/utils/log"
)

// ErrCleanClose is returned by Conn.ReadFrame when the peer closed the
// connection intentionally. A clean close never triggers reconnection.
var ErrCleanClose = errors.New("connection closed cleanly")

// ErrInvalidSend is returned by Send when the recipient or body is
// missing. Nothing is transmitted and no marker is created.
var ErrInvalidSend = errors.New("recipient and body are required")

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	// StateExhausted is terminal: the bounded reconnection attempts are
	// used up and only a manual retry can leave it.
	StateExhausted
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// SendState tracks one of the session's own messages from transmission
// to confirmed receipt.
type SendState int

const (
	// SendPending: transmitted, no receipt yet.
	SendPending SendState = iota
	// SendAccepted: the server returned a transport receipt. Not a
	// delivery confirmation.
	SendAccepted
	// SendDelivered: the recipient's acknowledgment was relayed back.
	SendDelivered
	// SendFailed: the transport was not writable at send time. The
	// session never retries an individual message; only the connection
	// reconnects.
	SendFailed
)

type (
	// Conn is one established, message-framed, ordered channel.
	Conn interface {
		ReadFrame() (*protocol.Frame, error)
		WriteFrame(f *protocol.Frame) error
		Close() error
	}

	// Dialer opens a new Conn carrying the session's credentials.
	Dialer interface {
		Dial() (Conn, error)
	}

	// Events receives everything the session surfaces. Rendering is the
	// implementer's concern; the session itself never touches a UI.
	Events interface {
		OnConnState(state ConnState, attempt int)
		// OnMessage fires exactly once per server message id, however
		// many times the server presents it.
		OnMessage(m model.Message)
		OnSendUpdate(clientMsgID string, state SendState)
		OnPresence(user string, status string)
	}

	// PendingSend correlates a client message id to a not-yet-confirmed
	// send.
	PendingSend struct {
		ClientMsgID string
		ServerMsgID string
		To          string
		Body        string
		State       SendState
	}

	SessionSettings struct {
		ReconnectBase time.Duration
		ReconnectCap  time.Duration
		MaxReconnects int
		PingInterval  time.Duration
	}

	// Session owns one connection's lifecycle: it establishes the
	// transport, classifies inbound frames, tracks sends awaiting
	// confirmation, suppresses duplicate deliveries and drives
	// reconnection with bounded exponential backoff.
	Session struct {
		identity string
		dialer   Dialer
		events   Events
		settings *SessionSettings

		// replaceable in tests to control backoff timers
		afterFunc func(d time.Duration, f func()) *time.Timer

		mu        sync.Mutex
		state     ConnState
		attempts  int
		conn      Conn
		connEpoch int
		reconnect *time.Timer
		closed    bool

		pending  map[string]*PendingSend // by clientMsgId
		byServer map[string]string       // serverMsgId -> clientMsgId
		seen     map[string]struct{}     // rendered serverMsgIds
	}
)

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		ReconnectBase: 1 * time.Second,
		ReconnectCap:  30 * time.Second,
		MaxReconnects: 5,
		PingInterval:  30 * time.Second,
	}
}

func NewSession(identity string, dialer Dialer, events Events, settings *SessionSettings) *Session {
	if settings == nil {
		settings = DefaultSessionSettings()
	}
	return &Session{
		identity:  identity,
		dialer:    dialer,
		events:    events,
		settings:  settings,
		afterFunc: time.AfterFunc,
		pending:   make(map[string]*PendingSend),
		byServer:  make(map[string]string),
		seen:      make(map[string]struct{}),
	}
}

func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the transport. On failure it schedules a
// reconnection attempt; callers only invoke it again for a manual retry
// out of the exhausted state.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.state == StateExhausted {
		// manual retry starts the attempt budget over
		s.attempts = 0
	}
	s.state = StateConnecting
	attempt := s.attempts
	s.mu.Unlock()
	s.events.OnConnState(StateConnecting, attempt)

	conn, err := s.dialer.Dial()
	if err != nil {
		log.Debug("dial failed", zap.Error(err))
		s.connectionLost()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.connEpoch++
	epoch := s.connEpoch
	s.attempts = 0
	s.state = StateConnected
	s.mu.Unlock()
	s.events.OnConnState(StateConnected, 0)

	go s.readLoop(conn, epoch)
	if s.settings.PingInterval > 0 {
		go s.pingLoop(conn, epoch)
	}
}

// Close tears the session down cleanly: the pending reconnect timer, if
// any, is cancelled and no further attempts are made.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.events.OnConnState(StateDisconnected, 0)
}

// Send transmits a message to identity `to`. A marker is created in the
// pending state and updated as confirmations arrive; if the transport
// is not writable the marker is failed immediately and nothing is sent.
func (s *Session) Send(to, body string) (string, error) {
	if to == "" || body == "" {
		return "", ErrInvalidSend
	}

	clientMsgID := ulid.Make().String()
	marker := &PendingSend{
		ClientMsgID: clientMsgID,
		To:          to,
		Body:        body,
		State:       SendPending,
	}

	s.mu.Lock()
	s.pending[clientMsgID] = marker
	conn := s.conn
	writable := s.state == StateConnected && conn != nil
	s.mu.Unlock()
	s.events.OnSendUpdate(clientMsgID, SendPending)

	if !writable {
		s.failSend(clientMsgID)
		return clientMsgID, nil
	}

	f := protocol.SendMessage(clientMsgID, to, body, time.Now().UnixMilli())
	if err := conn.WriteFrame(f); err != nil {
		log.Debug("send write failed", zap.Error(err))
		s.failSend(clientMsgID)
	}
	return clientMsgID, nil
}

// Pending returns a copy of the marker for clientMsgID, if it exists.
func (s *Session) Pending(clientMsgID string) (PendingSend, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[clientMsgID]
	if !ok {
		return PendingSend{}, false
	}
	return *m, true
}

func (s *Session) failSend(clientMsgID string) {
	s.mu.Lock()
	if m, ok := s.pending[clientMsgID]; ok {
		m.State = SendFailed
	}
	s.mu.Unlock()
	s.events.OnSendUpdate(clientMsgID, SendFailed)
}

func (s *Session) readLoop(conn Conn, epoch int) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			conn.Close()

			s.mu.Lock()
			stale := s.connEpoch != epoch || s.conn != conn
			closed := s.closed
			if !stale {
				s.conn = nil
			}
			s.mu.Unlock()

			if stale || closed {
				return
			}
			if errors.Is(err, ErrCleanClose) {
				s.mu.Lock()
				s.state = StateDisconnected
				s.mu.Unlock()
				s.events.OnConnState(StateDisconnected, 0)
				return
			}
			log.Debug("connection lost", zap.Error(err))
			s.connectionLost()
			return
		}
		s.handleFrame(conn, f)
	}
}

func (s *Session) pingLoop(conn Conn, epoch int) {
	ticker := time.NewTicker(s.settings.PingInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		current := s.connEpoch == epoch && s.conn == conn
		s.mu.Unlock()
		if !current {
			return
		}
		if err := conn.WriteFrame(protocol.Ping()); err != nil {
			return
		}
	}
}

// handleFrame classifies one inbound frame by its type discriminator.
// Unrecognized types are logged and dropped, never fatal.
func (s *Session) handleFrame(conn Conn, f *protocol.Frame) {
	switch f.Type {
	case protocol.TypeIncomingMessage:
		s.handleIncoming(conn, model.Message{
			ServerMsgID: f.ServerMsgID,
			From:        f.From,
			To:          s.identity,
			Body:        f.Body,
			Timestamp:   f.Timestamp,
		})
	case protocol.TypeUndeliveredBatch:
		// queued messages go through the identical path as live ones:
		// same dedup, same per-message acknowledgment
		for _, e := range f.Messages {
			s.handleIncoming(conn, model.Message{
				ServerMsgID: e.ServerMsgID,
				From:        e.From,
				To:          s.identity,
				Body:        e.Body,
				Timestamp:   e.Timestamp,
			})
		}
	case protocol.TypeAckMessage:
		s.handleAck(f)
	case protocol.TypePresenceUpdate:
		s.events.OnPresence(f.User, f.Status)
	case protocol.TypeError:
		log.Info("server error frame", zap.String("error", f.Error))
	case protocol.TypePong:
		log.Debug("pong", zap.Int64("timestamp", f.PongTime))
	default:
		log.Info("dropping frame with unknown type", zap.String("type", f.Type))
	}
}

func (s *Session) handleIncoming(conn Conn, m model.Message) {
	s.mu.Lock()
	if _, dup := s.seen[m.ServerMsgID]; dup {
		s.mu.Unlock()
		// already rendered; the direct-forward and batch paths can both
		// present the same id
		return
	}
	s.seen[m.ServerMsgID] = struct{}{}
	s.mu.Unlock()

	s.events.OnMessage(m)

	if err := conn.WriteFrame(protocol.Ack(m.ServerMsgID)); err != nil {
		// the ack is lost; the server redelivers on the next connect
		// and the seen-set suppresses the duplicate render
		log.Debug("ack write failed", zap.String("serverMsgId", m.ServerMsgID), zap.Error(err))
	}
}

// handleAck processes both shapes of ack_message: with a clientMsgId it
// is the server's transport receipt for one of our sends; without one
// it is the recipient's delivery acknowledgment relayed back.
func (s *Session) handleAck(f *protocol.Frame) {
	if f.ClientMsgID != "" {
		s.mu.Lock()
		m, ok := s.pending[f.ClientMsgID]
		if !ok || m.State != SendPending {
			// already confirmed, or from a prior session instance
			s.mu.Unlock()
			return
		}
		m.State = SendAccepted
		m.ServerMsgID = f.ServerMsgID
		s.byServer[f.ServerMsgID] = f.ClientMsgID
		s.mu.Unlock()
		s.events.OnSendUpdate(f.ClientMsgID, SendAccepted)
		return
	}

	s.mu.Lock()
	clientMsgID, ok := s.byServer[f.ServerMsgID]
	if !ok {
		s.mu.Unlock()
		return
	}
	m, ok := s.pending[clientMsgID]
	if !ok || m.State != SendAccepted {
		s.mu.Unlock()
		return
	}
	m.State = SendDelivered
	s.mu.Unlock()
	s.events.OnSendUpdate(clientMsgID, SendDelivered)
}

// connectionLost schedules the next reconnection attempt, or gives up
// once the attempt budget is spent. At most one attempt is ever in
// flight; a schedule request while one is pending is a no-op.
func (s *Session) connectionLost() {
	s.mu.Lock()
	if s.closed || s.reconnect != nil {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.settings.MaxReconnects {
		s.state = StateExhausted
		s.mu.Unlock()
		s.events.OnConnState(StateExhausted, s.settings.MaxReconnects)
		return
	}
	s.attempts++
	attempt := s.attempts
	delay := s.backoff(attempt)
	s.state = StateDisconnected
	s.reconnect = s.afterFunc(delay, func() {
		s.mu.Lock()
		s.reconnect = nil
		s.mu.Unlock()
		s.Connect()
	})
	s.mu.Unlock()

	s.events.OnConnState(StateDisconnected, attempt)
	log.Debug("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

// backoff returns min(base * 2^(attempt-1), cap).
func (s *Session) backoff(attempt int) time.Duration {
	d := s.settings.ReconnectBase << (attempt - 1)
	if d > s.settings.ReconnectCap {
		d = s.settings.ReconnectCap
	}
	return d
}
