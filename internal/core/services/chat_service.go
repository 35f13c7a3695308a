package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/internal/core/protocol"
	"duosync/pkg/utils"
	"duosync/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatServiceImpl manages in-session chat: text and voice messages, delivery
// receipts and typing notifications. Message status moves forward only
// (Sending -> Sent -> Delivered -> Read); Failed is terminal. History lives
// for the session and is dropped on Reset.
type ChatServiceImpl struct {
	sender     ports.FrameSender
	events     ports.EventPublisher
	deviceName string
	typingIdle time.Duration
	logger     *zap.SugaredLogger

	mu           sync.Mutex
	messages     []domain.ChatMessage
	index        map[string]int
	typingActive bool
	typingTimer  *time.Timer
}

func NewChatService(
	sender ports.FrameSender,
	events ports.EventPublisher,
	deviceName string,
	typingIdle time.Duration,
	logger *zap.SugaredLogger,
) *ChatServiceImpl {
	return &ChatServiceImpl{
		sender:     sender,
		events:     events,
		deviceName: deviceName,
		typingIdle: typingIdle,
		logger:     logger,
		index:      make(map[string]int),
	}
}

func (s *ChatServiceImpl) SendText(ctx context.Context, text string) (*domain.ChatMessage, error) {
	text = utils.SanitizeString(text)
	if err := validation.ValidateChatText(text); err != nil {
		return nil, err
	}

	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		Kind:       domain.MessageText,
		Text:       text,
		SenderName: s.deviceName,
		FromMe:     true,
		Timestamp:  time.Now(),
		Status:     domain.StatusSending,
	}

	s.mu.Lock()
	s.appendLocked(msg)
	s.stopTypingLocked()
	s.mu.Unlock()

	err := s.sender.SendFrame(protocol.TypeChatMessage, protocol.ChatMessagePayload{
		MessageID:  msg.ID,
		Text:       text,
		SenderName: s.deviceName,
	})
	return s.finishSend(msg.ID, err)
}

func (s *ChatServiceImpl) SendVoice(ctx context.Context, audio []byte, durationMs int64) (*domain.ChatMessage, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("voice message audio must not be empty")
	}

	msg := domain.ChatMessage{
		ID:              uuid.NewString(),
		Kind:            domain.MessageVoice,
		VoiceAudio:      audio,
		VoiceDurationMs: durationMs,
		SenderName:      s.deviceName,
		FromMe:          true,
		Timestamp:       time.Now(),
		Status:          domain.StatusSending,
	}

	s.mu.Lock()
	s.appendLocked(msg)
	s.stopTypingLocked()
	s.mu.Unlock()

	err := s.sender.SendFrame(protocol.TypeVoiceMessage, protocol.VoiceMessagePayload{
		MessageID:   msg.ID,
		SenderName:  s.deviceName,
		Duration:    durationMs,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
	})
	return s.finishSend(msg.ID, err)
}

// finishSend moves the freshly appended message to Sent or Failed.
func (s *ChatServiceImpl) finishSend(id string, sendErr error) (*domain.ChatMessage, error) {
	next := domain.StatusSent
	if sendErr != nil {
		next = domain.StatusFailed
	}
	msg := s.advanceStatus(id, next)
	if msg != nil {
		s.publish(domain.EventChatMessage, *msg)
	}

	if sendErr != nil {
		return msg, fmt.Errorf("failed to send chat message: %w", sendErr)
	}
	return msg, nil
}

func (s *ChatServiceImpl) MarkRead(ctx context.Context, messageID string) error {
	s.mu.Lock()
	i, ok := s.index[messageID]
	if !ok || s.messages[i].FromMe {
		s.mu.Unlock()
		return fmt.Errorf("no received message with ID %s", messageID)
	}
	s.mu.Unlock()

	if err := s.sender.SendFrame(protocol.TypeMessageRead, protocol.MessageAckPayload{MessageID: messageID}); err != nil {
		return err
	}
	s.advanceStatus(messageID, domain.StatusRead)
	return nil
}

// NotifyTyping reports local input activity. TYPING_START goes out once per
// burst; TYPING_STOP follows after the idle window or when a message is sent.
func (s *ChatServiceImpl) NotifyTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.typingActive {
		if err := s.sender.SendFrame(protocol.TypeTypingStart, nil); err != nil {
			return
		}
		s.typingActive = true
	}

	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.typingIdle, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopTypingLocked()
	})
}

func (s *ChatServiceImpl) stopTypingLocked() {
	if !s.typingActive {
		return
	}
	s.typingActive = false
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if err := s.sender.SendFrame(protocol.TypeTypingStop, nil); err != nil {
		s.logger.Debugw("failed to send typing stop", "error", err)
	}
}

func (s *ChatServiceImpl) HandleFrame(ctx context.Context, frameType protocol.MessageType, payload interface{}) error {
	switch frameType {
	case protocol.TypeChatMessage:
		p, ok := payload.(*protocol.ChatMessagePayload)
		if !ok {
			return fmt.Errorf("unexpected CHAT_MESSAGE payload")
		}
		return s.receiveMessage(domain.ChatMessage{
			ID:         p.MessageID,
			Kind:       domain.MessageText,
			Text:       p.Text,
			SenderName: p.SenderName,
			Timestamp:  time.Now(),
			Status:     domain.StatusDelivered,
		})

	case protocol.TypeVoiceMessage:
		p, ok := payload.(*protocol.VoiceMessagePayload)
		if !ok {
			return fmt.Errorf("unexpected VOICE_MESSAGE payload")
		}
		audio, err := base64.StdEncoding.DecodeString(p.AudioBase64)
		if err != nil {
			return fmt.Errorf("malformed voice audio: %w", err)
		}
		return s.receiveMessage(domain.ChatMessage{
			ID:              p.MessageID,
			Kind:            domain.MessageVoice,
			VoiceAudio:      audio,
			VoiceDurationMs: p.Duration,
			SenderName:      p.SenderName,
			Timestamp:       time.Now(),
			Status:          domain.StatusDelivered,
		})

	case protocol.TypeMessageDelivered:
		p, ok := payload.(*protocol.MessageAckPayload)
		if !ok {
			return fmt.Errorf("unexpected MESSAGE_DELIVERED payload")
		}
		s.advanceStatus(p.MessageID, domain.StatusDelivered)
		return nil

	case protocol.TypeMessageRead:
		p, ok := payload.(*protocol.MessageAckPayload)
		if !ok {
			return fmt.Errorf("unexpected MESSAGE_READ payload")
		}
		s.advanceStatus(p.MessageID, domain.StatusRead)
		return nil

	case protocol.TypeTypingStart, protocol.TypeTypingStop:
		s.publish(domain.EventTyping, frameType == protocol.TypeTypingStart)
		return nil

	default:
		return fmt.Errorf("not a chat frame: %s", frameType)
	}
}

// receiveMessage stores an inbound message and acknowledges it exactly once.
// Duplicate deliveries of the same message ID are dropped without a second
// ack.
func (s *ChatServiceImpl) receiveMessage(msg domain.ChatMessage) error {
	s.mu.Lock()
	if _, seen := s.index[msg.ID]; seen {
		s.mu.Unlock()
		return nil
	}
	s.appendLocked(msg)
	s.mu.Unlock()

	s.publish(domain.EventChatMessage, msg)

	if err := s.sender.SendFrame(protocol.TypeMessageDelivered, protocol.MessageAckPayload{MessageID: msg.ID}); err != nil {
		s.logger.Warnw("failed to ack chat message", "message_id", msg.ID, "error", err)
	}
	return nil
}

// advanceStatus applies a forward-only status transition and returns the
// updated message. Illegal transitions (regressions, updates to Failed
// messages) are ignored.
func (s *ChatServiceImpl) advanceStatus(id string, next domain.MessageStatus) *domain.ChatMessage {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if !s.messages[i].Status.CanTransition(next) {
		msg := s.messages[i]
		s.mu.Unlock()
		return &msg
	}
	s.messages[i].Status = next
	msg := s.messages[i]
	s.mu.Unlock()

	s.publish(domain.EventChatStatus, map[string]interface{}{
		"messageId": id,
		"status":    string(next),
	})
	return &msg
}

func (s *ChatServiceImpl) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage(nil), s.messages...)
}

func (s *ChatServiceImpl) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.index = make(map[string]int)
	s.typingActive = false
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
}

func (s *ChatServiceImpl) appendLocked(msg domain.ChatMessage) {
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
}

func (s *ChatServiceImpl) publish(t domain.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(domain.Event{
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
