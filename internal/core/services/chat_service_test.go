package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newChatService(sender *recordingSender) (*ChatServiceImpl, *recordingPublisher) {
	events := &recordingPublisher{}
	svc := NewChatService(sender, events, "Pixel 7", 50*time.Millisecond, zap.NewNop().Sugar())
	return svc, events
}

func TestSendTextMarksSent(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)

	msg, err := svc.SendText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, msg.Status)
	assert.True(t, msg.FromMe)
	assert.Equal(t, 1, sender.count(protocol.TypeChatMessage))
}

func TestSendTextFailureMarksFailed(t *testing.T) {
	sender := &recordingSender{err: errors.New("channel closed")}
	svc, _ := newChatService(sender)

	msg, err := svc.SendText(context.Background(), "hello")
	require.Error(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, domain.StatusFailed, msg.Status)
}

func TestSendTextRejectsEmpty(t *testing.T) {
	svc, _ := newChatService(&recordingSender{})
	_, err := svc.SendText(context.Background(), "   ")
	assert.Error(t, err)
}

func TestReceiveMessageAcksExactlyOnce(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)
	ctx := context.Background()

	payload := &protocol.ChatMessagePayload{MessageID: "m1", Text: "hi", SenderName: "Partner"}
	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeChatMessage, payload))
	// Redelivery of the same message must not produce a second ack.
	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeChatMessage, payload))

	assert.Equal(t, 1, sender.count(protocol.TypeMessageDelivered))
	assert.Len(t, svc.Messages(), 1)
}

func TestStatusNeverRegresses(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)
	ctx := context.Background()

	msg, err := svc.SendText(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeMessageRead, &protocol.MessageAckPayload{MessageID: msg.ID}))
	// A late MESSAGE_DELIVERED after MESSAGE_READ must not pull the status
	// back.
	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeMessageDelivered, &protocol.MessageAckPayload{MessageID: msg.ID}))

	msgs := svc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StatusRead, msgs[0].Status)
}

func TestDeliveredThenRead(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)
	ctx := context.Background()

	msg, err := svc.SendText(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeMessageDelivered, &protocol.MessageAckPayload{MessageID: msg.ID}))
	assert.Equal(t, domain.StatusDelivered, svc.Messages()[0].Status)

	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeMessageRead, &protocol.MessageAckPayload{MessageID: msg.ID}))
	assert.Equal(t, domain.StatusRead, svc.Messages()[0].Status)
}

func TestVoiceMessageRoundTrip(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)
	ctx := context.Background()

	msg, err := svc.SendVoice(ctx, []byte{0x01, 0x02, 0x03}, 1500)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageVoice, msg.Kind)
	assert.Equal(t, domain.StatusSent, msg.Status)

	frames := sender.sent()
	require.Len(t, frames, 1)
	payload := frames[0].Payload.(protocol.VoiceMessagePayload)
	assert.Equal(t, "AQID", payload.AudioBase64)
	assert.Equal(t, int64(1500), payload.Duration)
}

func TestTypingStartOncePerBurst(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)

	svc.NotifyTyping()
	svc.NotifyTyping()
	svc.NotifyTyping()

	assert.Equal(t, 1, sender.count(protocol.TypeTypingStart))

	// TYPING_STOP fires after the idle window.
	assert.Eventually(t, func() bool {
		return sender.count(protocol.TypeTypingStop) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSendStopsActiveTyping(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)

	svc.NotifyTyping()
	_, err := svc.SendText(context.Background(), "done typing")
	require.NoError(t, err)

	assert.Equal(t, 1, sender.count(protocol.TypeTypingStop))
}

func TestRemoteTypingPublishesEvent(t *testing.T) {
	svc, events := newChatService(&recordingSender{})
	ctx := context.Background()

	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeTypingStart, nil))
	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeTypingStop, nil))

	typing := events.ofType(domain.EventTyping)
	require.Len(t, typing, 2)
	assert.Equal(t, true, typing[0].Payload)
	assert.Equal(t, false, typing[1].Payload)
}

func TestMarkReadSendsAck(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newChatService(sender)
	ctx := context.Background()

	require.NoError(t, svc.HandleFrame(ctx, protocol.TypeChatMessage,
		&protocol.ChatMessagePayload{MessageID: "m1", Text: "hi", SenderName: "Partner"}))
	require.NoError(t, svc.MarkRead(ctx, "m1"))

	assert.Equal(t, 1, sender.count(protocol.TypeMessageRead))
	assert.Error(t, svc.MarkRead(ctx, "unknown"))
}

func TestResetDropsHistory(t *testing.T) {
	svc, _ := newChatService(&recordingSender{})
	ctx := context.Background()

	_, err := svc.SendText(ctx, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, svc.Messages())

	svc.Reset()
	assert.Empty(t, svc.Messages())
}
