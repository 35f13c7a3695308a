package services

import (
	"context"
	"testing"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/internal/core/protocol"
	"duosync/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sessionFixture struct {
	svc          *SessionServiceImpl
	engines      *fakeEngineFactory
	presence     *PresenceServiceImpl
	presenceRepo ports.PresenceRepository
	events       *recordingPublisher
	playback     *MockPlaybackController
	library      *LibraryServiceImpl
	chat         *ChatServiceImpl
}

func newSessionFixture(t *testing.T, myID domain.PeerID) *sessionFixture {
	t.Helper()
	logger := zap.NewNop().Sugar()

	boxes := memory.NewMemoryMailboxRepository()
	presenceRepo := memory.NewMemoryPresenceRepository()

	signaling := NewSignalingService(boxes, logger)
	presence := NewPresenceService(presenceRepo, 10*time.Millisecond, time.Second, logger)
	engines := &fakeEngineFactory{}
	events := &recordingPublisher{}
	playback := &MockPlaybackController{}

	svc := NewSessionService(myID, "Test Device", signaling, presence, engines, events, time.Hour, logger)
	library := NewLibraryService(svc, events, time.Millisecond, 50*time.Millisecond, 1, logger)
	chat := NewChatService(svc, events, "Test Device", 50*time.Millisecond, logger)
	svc.Attach(library, chat, playback)

	return &sessionFixture{
		svc:          svc,
		engines:      engines,
		presence:     presence,
		presenceRepo: presenceRepo,
		events:       events,
		playback:     playback,
		library:      library,
		chat:         chat,
	}
}

// remoteOnline models a remote daemon coming up: each remote peer runs its
// own presence service over the shared repository, since a presence service
// publishes exactly one local peer. f.presence tracks the most recent remote
// so tests can take it offline again via Stop.
func (f *sessionFixture) remoteOnline(t *testing.T, id domain.PeerID) {
	t.Helper()
	remote := NewPresenceService(f.presenceRepo, 10*time.Millisecond, time.Second, zap.NewNop().Sugar())
	require.NoError(t, remote.Start(context.Background(), id, "Remote Device"))
	f.presence = remote
}

func TestConnectRejectsInvalidTargets(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Connect(ctx, "short"), domain.ErrInvalidPeerID)
	assert.ErrorIs(t, f.svc.Connect(ctx, "111111111111"), domain.ErrSelfConnect)
}

func TestConnectRejectsOfflinePeer(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	err := f.svc.Connect(context.Background(), "222222222222")
	assert.ErrorIs(t, err, domain.ErrPeerOffline)
}

func TestConnectReachesWaitingForAnswer(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	f.remoteOnline(t, "222222222222")
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, "222222222222"))

	snap := f.svc.Snapshot()
	assert.Equal(t, domain.SessionWaitingForAnswer, snap.State)
	assert.Equal(t, domain.RoleOfferer, snap.Role)
	assert.Equal(t, domain.PeerID("222222222222"), snap.RemoteID)
	assert.False(t, snap.ChannelOpen)
}

func TestSecondConnectWhileActiveFails(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	f.remoteOnline(t, "222222222222")
	f.remoteOnline(t, "333333333333")
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, "222222222222"))
	assert.ErrorIs(t, f.svc.Connect(ctx, "333333333333"), domain.ErrSessionActive)
}

func TestAnswerMovesToConnecting(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	f.remoteOnline(t, "222222222222")
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, "222222222222"))
	f.svc.handleAnswer(domain.Answer{SDP: "v=0\r\n", From: "222222222222", Timestamp: time.Now()})

	assert.Equal(t, domain.SessionConnecting, f.svc.Snapshot().State)
}

func TestAnswerFromWrongPeerIsDropped(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	f.remoteOnline(t, "222222222222")
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, "222222222222"))
	f.svc.handleAnswer(domain.Answer{SDP: "v=0\r\n", From: "999999999999", Timestamp: time.Now()})

	assert.Equal(t, domain.SessionWaitingForAnswer, f.svc.Snapshot().State)
}

func TestChannelOpenConnectsAndStartsSync(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	f.remoteOnline(t, "222222222222")
	f.library.SetLocalLibrary([]domain.Track{track("1", "Alpha", "Artist", 180000)})
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, "222222222222"))
	engine := f.engines.lastEngine()
	require.NotNil(t, engine)

	engine.cb.OnOpen()

	snap := f.svc.Snapshot()
	assert.Equal(t, domain.SessionConnected, snap.State)
	assert.True(t, snap.ChannelOpen)

	// The reconciliation round starts on its own after the settle delay.
	assert.Eventually(t, func() bool {
		for _, frame := range engine.sentFrames() {
			if frame.Type == protocol.TypeSyncLibrary {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestAcceptAnswersPendingOffer(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	ctx := context.Background()

	f.svc.handleIncomingOffer(domain.Offer{SDP: "v=0\r\n", From: "222222222222", FromDevice: "Remote", Timestamp: time.Now()})
	require.NotNil(t, f.svc.PendingOffer())

	require.NoError(t, f.svc.Accept(ctx))

	snap := f.svc.Snapshot()
	assert.Equal(t, domain.SessionConnecting, snap.State)
	assert.Equal(t, domain.RoleAnswerer, snap.Role)
	assert.Nil(t, f.svc.PendingOffer())
}

func TestAcceptWithoutOfferFails(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	assert.ErrorIs(t, f.svc.Accept(context.Background()), domain.ErrNoPendingOffer)
}

func TestRejectClearsPendingOffer(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	ctx := context.Background()

	f.svc.handleIncomingOffer(domain.Offer{SDP: "v=0\r\n", From: "222222222222", Timestamp: time.Now()})
	require.NoError(t, f.svc.Reject(ctx))
	assert.Nil(t, f.svc.PendingOffer())
	assert.ErrorIs(t, f.svc.Reject(ctx), domain.ErrNoPendingOffer)
}

func TestOfferIgnoredWhileSessionActive(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	f.remoteOnline(t, "222222222222")
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, "222222222222"))
	f.svc.handleIncomingOffer(domain.Offer{SDP: "v=0\r\n", From: "333333333333", Timestamp: time.Now()})
	assert.Nil(t, f.svc.PendingOffer())
}

func openSession(t *testing.T, f *sessionFixture) *fakeEngine {
	t.Helper()
	f.remoteOnline(t, "222222222222")
	require.NoError(t, f.svc.Connect(context.Background(), "222222222222"))
	engine := f.engines.lastEngine()
	require.NotNil(t, engine)
	engine.cb.OnOpen()
	return engine
}

func TestLocalCommandIsAppliedAndMirrored(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	engine := openSession(t, f)
	ctx := context.Background()

	f.playback.On("Apply", mock.Anything, mock.Anything).Return(nil)

	cmd := domain.PlaybackCommand{Action: domain.ActionPause, Origin: domain.OriginLocal}
	require.NoError(t, f.svc.HandleLocalCommand(ctx, cmd))

	f.playback.AssertCalled(t, "Apply", mock.Anything, cmd)

	found := false
	for _, frame := range engine.sentFrames() {
		if frame.Type == protocol.TypePause {
			found = true
		}
	}
	assert.True(t, found, "PAUSE frame must be mirrored to the partner")
}

func TestRemoteCommandIsAppliedButNeverEchoed(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	engine := openSession(t, f)

	f.playback.On("Apply", mock.Anything, mock.MatchedBy(func(cmd domain.PlaybackCommand) bool {
		return cmd.Origin == domain.OriginRemote && cmd.Action == domain.ActionPlay
	})).Return(nil)

	frame, err := protocol.Encode(protocol.TypePlay, protocol.PlayPayload{SongHash: "abc", Position: 1000})
	require.NoError(t, err)
	data, err := frame.Marshal()
	require.NoError(t, err)

	before := len(engine.sentFrames())
	engine.cb.OnMessage(data)

	f.playback.AssertExpectations(t)
	for _, sent := range engine.sentFrames()[before:] {
		assert.NotEqual(t, protocol.TypePlay, sent.Type, "remote command must not be echoed back")
	}
}

func TestRemoteOriginCommandRejectedByLocalPath(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	openSession(t, f)

	err := f.svc.HandleLocalCommand(context.Background(), domain.PlaybackCommand{
		Action: domain.ActionPause,
		Origin: domain.OriginRemote,
	})
	assert.Error(t, err)
}

func TestMalformedFrameIsDroppedSessionSurvives(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	engine := openSession(t, f)

	engine.cb.OnMessage([]byte("not a frame at all"))
	engine.cb.OnMessage([]byte(`{"type":"PLAY","payload":"{broken","timestamp":1}`))
	engine.cb.OnMessage([]byte(`{"type":"TELEPORT","payload":"{}","timestamp":1}`))

	snap := f.svc.Snapshot()
	assert.Equal(t, domain.SessionConnected, snap.State)
	assert.True(t, snap.ChannelOpen)
}

func TestDisconnectTearsDownDerivedState(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	engine := openSession(t, f)
	ctx := context.Background()

	// Put some session-derived state in place.
	require.NoError(t, f.chat.HandleFrame(ctx, protocol.TypeChatMessage,
		&protocol.ChatMessagePayload{MessageID: "m1", Text: "hi", SenderName: "Remote"}))
	require.NotEmpty(t, f.chat.Messages())

	require.NoError(t, f.svc.Disconnect(ctx))

	snap := f.svc.Snapshot()
	assert.Equal(t, domain.SessionDisconnected, snap.State)
	assert.False(t, snap.ChannelOpen)
	assert.True(t, engine.closed)
	assert.Empty(t, f.chat.Messages())
	assert.Equal(t, 0, f.library.Common().Size())
}

func TestDisconnectWithoutSessionFails(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	assert.ErrorIs(t, f.svc.Disconnect(context.Background()), domain.ErrNoSession)
}

func TestRemoteDisconnectFrameEndsSession(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	engine := openSession(t, f)

	frame, err := protocol.Encode(protocol.TypeDisconnect, nil)
	require.NoError(t, err)
	data, err := frame.Marshal()
	require.NoError(t, err)
	engine.cb.OnMessage(data)

	assert.Equal(t, domain.SessionDisconnected, f.svc.Snapshot().State)
}

func TestEngineCloseWithErrorEntersErrorState(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	engine := openSession(t, f)

	engine.cb.OnClose(assert.AnError)

	snap := f.svc.Snapshot()
	assert.Equal(t, domain.SessionError, snap.State)
	require.NotEmpty(t, f.events.ofType(domain.EventSessionError))
}

func TestQualityUpdatesSnapshot(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	engine := openSession(t, f)

	assert.Equal(t, DefaultQualityScore, f.svc.Snapshot().QualityScore)
	engine.cb.OnQuality(45)
	assert.Equal(t, 45, f.svc.Snapshot().QualityScore)
}

func TestSendFrameWithoutChannelFails(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	err := f.svc.SendFrame(protocol.TypeHeartbeat, nil)
	assert.ErrorIs(t, err, domain.ErrChannelClosed)
}

func TestRemotePresenceChangeIsPublishedDuringSession(t *testing.T) {
	f := newSessionFixture(t, "111111111111")
	openSession(t, f)

	// The partner drops off; its offline write must surface on the event
	// stream while the session is up.
	require.NoError(t, f.presence.Stop(context.Background()))

	assert.Eventually(t, func() bool {
		for _, e := range f.events.ofType(domain.EventPresence) {
			if rec, ok := e.Payload.(domain.PresenceRecord); ok && !rec.Online {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

// answerInjectingSignaling delivers the answer while the offer write is still
// in flight, the tightest race the offerer can see.
type answerInjectingSignaling struct {
	ports.SignalingService
	svc *SessionServiceImpl
}

func (a *answerInjectingSignaling) SendOffer(ctx context.Context, from, to domain.PeerID, sdp, fromDevice string) error {
	if err := a.SignalingService.SendOffer(ctx, from, to, sdp, fromDevice); err != nil {
		return err
	}
	a.svc.handleAnswer(domain.Answer{SDP: "v=0\r\n", From: to, Timestamp: time.Now()})
	return nil
}

func TestAnswerArrivingDuringOfferSendIsApplied(t *testing.T) {
	logger := zap.NewNop().Sugar()
	events := &recordingPublisher{}

	signaling := &answerInjectingSignaling{
		SignalingService: NewSignalingService(memory.NewMemoryMailboxRepository(), logger),
	}
	presence := NewPresenceService(memory.NewMemoryPresenceRepository(), 10*time.Millisecond, time.Second, logger)
	svc := NewSessionService("111111111111", "Test Device", signaling, presence, &fakeEngineFactory{}, events, time.Hour, logger)
	library := NewLibraryService(svc, events, time.Millisecond, 50*time.Millisecond, 1, logger)
	chat := NewChatService(svc, events, "Test Device", 50*time.Millisecond, logger)
	svc.Attach(library, chat, &MockPlaybackController{})
	signaling.svc = svc

	ctx := context.Background()
	require.NoError(t, presence.Start(ctx, "222222222222", "Remote Device"))
	require.NoError(t, svc.Connect(ctx, "222222222222"))

	assert.Equal(t, domain.SessionConnecting, svc.Snapshot().State,
		"an answer racing the offer write must not be dropped")
}
