package control

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The control socket only serves loopback UI clients.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer is the live control surface for UI clients: it streams
// service events out and accepts commands (connect, accept, playback, chat)
// in. State queries go over the HTTP API; the socket carries only deltas.
type WebSocketServer struct {
	broker  *Broker
	session ports.SessionService
	chat    ports.ChatService
	library ports.LibraryService

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	cmdRate      rate.Limit
	cmdBurst     int

	mu          sync.RWMutex
	connections map[*websocket.Conn]struct{}

	logger *zap.SugaredLogger
}

// CommandMessage is one inbound control command.
type CommandMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type connectPayload struct {
	PeerID domain.PeerID `json:"peerId"`
}

type playbackPayload struct {
	Action   string `json:"action"`
	SongHash string `json:"songHash,omitempty"`
	Position int64  `json:"position,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

type chatTextPayload struct {
	Text string `json:"text"`
}

type chatVoicePayload struct {
	AudioBase64 string `json:"audio"`
	Duration    int64  `json:"duration"`
}

type markReadPayload struct {
	MessageID string `json:"messageId"`
}

type setLibraryPayload struct {
	Tracks []domain.Track `json:"tracks"`
}

func NewWebSocketServer(
	broker *Broker,
	session ports.SessionService,
	chat ports.ChatService,
	library ports.LibraryService,
	pingInterval, pongTimeout, writeTimeout time.Duration,
	cmdRate float64, cmdBurst int,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	return &WebSocketServer{
		broker:       broker,
		session:      session,
		chat:         chat,
		library:      library,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		writeTimeout: writeTimeout,
		cmdRate:      rate.Limit(cmdRate),
		cmdBurst:     cmdBurst,
		connections:  make(map[*websocket.Conn]struct{}),
		logger:       logger,
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.connections[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.connections, conn)
		s.mu.Unlock()
	}()

	s.logger.Infow("control client connected", "remote", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	events := s.broker.Subscribe()
	defer s.broker.Unsubscribe(events)

	commands := make(chan CommandMessage, 10)
	errors := make(chan error, 1)

	go func() {
		for {
			var msg CommandMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errors <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			commands <- msg
		}
	}()

	// Replay the current session snapshot so a freshly attached client does
	// not start from a blank state.
	s.writeEvent(conn, domain.Event{
		Type:      domain.EventSessionState,
		Timestamp: time.Now(),
		Payload:   s.session.Snapshot(),
	})

	limiter := rate.NewLimiter(s.cmdRate, s.cmdBurst)
	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case event := <-events:
			if err := s.writeEvent(conn, event); err != nil {
				s.logger.Debugw("event write failed, dropping client", "error", err)
				return
			}

		case msg := <-commands:
			if !limiter.Allow() {
				s.writeError(conn, "command rate limit exceeded")
				continue
			}
			if err := s.handleCommand(r.Context(), msg); err != nil {
				s.logger.Infow("command failed", "type", msg.Type, "error", err)
				s.writeError(conn, err.Error())
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debugw("ping failed, dropping client", "error", err)
				return
			}

		case err := <-errors:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("control client read error", "error", err)
			}
			return
		}
	}
}

func (s *WebSocketServer) handleCommand(ctx context.Context, msg CommandMessage) error {
	switch msg.Type {
	case "session.connect":
		var p connectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid connect payload: %w", err)
		}
		return s.session.Connect(ctx, p.PeerID)

	case "session.accept":
		return s.session.Accept(ctx)

	case "session.reject":
		return s.session.Reject(ctx)

	case "session.disconnect":
		return s.session.Disconnect(ctx)

	case "playback.command":
		var p playbackPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid playback payload: %w", err)
		}
		return s.session.HandleLocalCommand(ctx, domain.PlaybackCommand{
			Action:     domain.PlaybackAction(p.Action),
			Origin:     domain.OriginLocal,
			SongDigest: p.SongHash,
			PositionMs: p.Position,
			Enabled:    p.Enabled,
			Repeat:     domain.RepeatMode(p.Mode),
		})

	case "chat.send":
		var p chatTextPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid chat payload: %w", err)
		}
		_, err := s.chat.SendText(ctx, p.Text)
		return err

	case "chat.voice":
		var p chatVoicePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid voice payload: %w", err)
		}
		audio, err := base64.StdEncoding.DecodeString(p.AudioBase64)
		if err != nil {
			return fmt.Errorf("malformed voice audio: %w", err)
		}
		_, err = s.chat.SendVoice(ctx, audio, p.Duration)
		return err

	case "chat.read":
		var p markReadPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid read payload: %w", err)
		}
		return s.chat.MarkRead(ctx, p.MessageID)

	case "chat.typing":
		s.chat.NotifyTyping()
		return nil

	case "library.set":
		var p setLibraryPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid library payload: %w", err)
		}
		s.library.SetLocalLibrary(p.Tracks)
		return nil

	default:
		return fmt.Errorf("unknown command type: %s", msg.Type)
	}
}

func (s *WebSocketServer) writeEvent(conn *websocket.Conn, event domain.Event) error {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(event)
}

func (s *WebSocketServer) writeError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_ = conn.WriteJSON(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
