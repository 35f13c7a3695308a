package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/internal/core/protocol"

	"go.uber.org/zap"
)

// SessionServiceImpl owns the device's single Duo session: the offerer and
// answerer handshakes, the frame dispatch loop, and teardown of all derived
// state. It also implements ports.FrameSender for the library and chat
// services.
type SessionServiceImpl struct {
	myID       domain.PeerID
	deviceName string

	signaling ports.SignalingService
	presence  ports.PresenceService
	engines   ports.EngineFactory
	events    ports.EventPublisher
	logger    *zap.SugaredLogger

	heartbeatInterval time.Duration

	// Attached after construction; they need this service as their sender.
	library  ports.LibraryService
	chat     ports.ChatService
	playback ports.PlaybackController
	metrics  ports.MetricsRecorder

	mu            sync.Mutex
	session       domain.Session
	engine        ports.SessionEngine
	pendingOffer  *domain.Offer
	cancelSession context.CancelFunc
}

func NewSessionService(
	myID domain.PeerID,
	deviceName string,
	signaling ports.SignalingService,
	presence ports.PresenceService,
	engines ports.EngineFactory,
	events ports.EventPublisher,
	heartbeatInterval time.Duration,
	logger *zap.SugaredLogger,
) *SessionServiceImpl {
	return &SessionServiceImpl{
		myID:              myID,
		deviceName:        deviceName,
		signaling:         signaling,
		presence:          presence,
		engines:           engines,
		events:            events,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
		session: domain.Session{
			LocalID:      myID,
			State:        domain.SessionIdle,
			QualityScore: DefaultQualityScore,
		},
	}
}

// Attach wires the collaborators that depend on this service as their frame
// sender. Must be called before Run.
func (s *SessionServiceImpl) Attach(library ports.LibraryService, chat ports.ChatService, playback ports.PlaybackController) {
	s.library = library
	s.chat = chat
	s.playback = playback
}

// SetMetrics installs the measurement sink. Must be called before Run.
func (s *SessionServiceImpl) SetMetrics(metrics ports.MetricsRecorder) {
	s.metrics = metrics
}

// Run watches the local mailbox for incoming offers and answers until ctx is
// cancelled.
func (s *SessionServiceImpl) Run(ctx context.Context) error {
	offers, err := s.signaling.ObserveIncomingOffers(ctx, s.myID)
	if err != nil {
		return fmt.Errorf("failed to observe offers: %w", err)
	}
	answers, err := s.signaling.ObserveAnswers(ctx, s.myID)
	if err != nil {
		return fmt.Errorf("failed to observe answers: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case offer, ok := <-offers:
			if !ok {
				return nil
			}
			s.handleIncomingOffer(offer)
		case answer, ok := <-answers:
			if !ok {
				return nil
			}
			s.handleAnswer(answer)
		}
	}
}

func (s *SessionServiceImpl) handleIncomingOffer(offer domain.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Active() {
		s.logger.Warnw("ignoring offer while session active",
			"from", offer.From,
			"active_remote", s.session.RemoteID,
		)
		return
	}

	s.pendingOffer = &offer
	s.logger.Infow("incoming offer", "from", offer.From, "device", offer.FromDevice)
	s.publishLocked(domain.EventIncomingOffer, map[string]interface{}{
		"from":       offer.From,
		"deviceName": offer.FromDevice,
	})
}

func (s *SessionServiceImpl) handleAnswer(answer domain.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.State != domain.SessionWaitingForAnswer || s.engine == nil {
		s.logger.Debugw("dropping answer outside waiting state", "from", answer.From, "state", s.session.State)
		return
	}
	if answer.From != s.session.RemoteID {
		s.logger.Warnw("dropping answer from unexpected peer", "from", answer.From, "expected", s.session.RemoteID)
		return
	}

	if err := s.engine.SetRemoteAnswer(answer.SDP); err != nil {
		s.failLocked(fmt.Errorf("failed to apply remote answer: %w", err))
		return
	}
	s.setStateLocked(domain.SessionConnecting)
}

func (s *SessionServiceImpl) Connect(ctx context.Context, remote domain.PeerID) error {
	if !remote.Valid() {
		return domain.ErrInvalidPeerID
	}
	if remote == s.myID {
		return domain.ErrSelfConnect
	}

	s.mu.Lock()
	if s.session.Active() {
		s.mu.Unlock()
		return domain.ErrSessionActive
	}
	s.mu.Unlock()

	rec, err := s.presence.GetOnce(ctx, remote)
	if err != nil {
		return fmt.Errorf("presence check failed: %w", err)
	}
	if rec == nil || !rec.Online {
		return domain.ErrPeerOffline
	}

	s.mu.Lock()
	if s.session.Active() {
		s.mu.Unlock()
		return domain.ErrSessionActive
	}
	s.session = domain.Session{
		LocalID:          s.myID,
		RemoteID:         remote,
		RemoteDeviceName: rec.DeviceName,
		Role:             domain.RoleOfferer,
		State:            domain.SessionInitializing,
		QualityScore:     DefaultQualityScore,
	}
	s.publishStateLocked()

	engine, err := s.engines.NewEngine(s.callbacks())
	if err != nil {
		s.failLocked(fmt.Errorf("failed to create engine: %w", err))
		s.mu.Unlock()
		return err
	}
	s.engine = engine
	s.setStateLocked(domain.SessionGatheringCandidates)
	s.mu.Unlock()

	// Non-trickle: CreateOffer blocks until candidate gathering finishes or
	// times out, so the SDP written to the mailbox is complete.
	gatherStart := time.Now()
	sdp, err := engine.CreateOffer(ctx)
	if err != nil {
		s.fail(fmt.Errorf("offer creation failed: %w", err))
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordGatheringDuration(time.Since(gatherStart))
	}

	// Enter the waiting state before the offer is written: the answer can
	// land the moment the mailbox write is visible, and handleAnswer only
	// applies answers while waiting.
	s.mu.Lock()
	s.setStateLocked(domain.SessionWaitingForAnswer)
	s.mu.Unlock()

	if err := s.signaling.SendOffer(ctx, s.myID, remote, sdp, s.deviceName); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

func (s *SessionServiceImpl) Accept(ctx context.Context) error {
	s.mu.Lock()
	if s.pendingOffer == nil {
		s.mu.Unlock()
		return domain.ErrNoPendingOffer
	}
	if s.session.Active() {
		s.mu.Unlock()
		return domain.ErrSessionActive
	}
	offer := *s.pendingOffer
	s.pendingOffer = nil

	s.session = domain.Session{
		LocalID:          s.myID,
		RemoteID:         offer.From,
		RemoteDeviceName: offer.FromDevice,
		Role:             domain.RoleAnswerer,
		State:            domain.SessionInitializing,
		QualityScore:     DefaultQualityScore,
	}
	s.publishStateLocked()

	engine, err := s.engines.NewEngine(s.callbacks())
	if err != nil {
		s.failLocked(fmt.Errorf("failed to create engine: %w", err))
		s.mu.Unlock()
		return err
	}
	s.engine = engine
	s.setStateLocked(domain.SessionGatheringCandidates)
	s.mu.Unlock()

	gatherStart := time.Now()
	sdp, err := engine.CreateAnswer(ctx, offer.SDP)
	if err != nil {
		s.fail(fmt.Errorf("answer creation failed: %w", err))
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordGatheringDuration(time.Since(gatherStart))
	}

	if err := s.signaling.SendAnswer(ctx, s.myID, offer.From, sdp); err != nil {
		s.fail(err)
		return err
	}

	// The consumed offer is cleared so a restart does not replay it.
	if err := s.signaling.Clear(ctx, s.myID); err != nil {
		s.logger.Warnw("failed to clear own mailbox after accept", "error", err)
	}

	s.mu.Lock()
	s.setStateLocked(domain.SessionConnecting)
	s.mu.Unlock()
	return nil
}

func (s *SessionServiceImpl) Reject(ctx context.Context) error {
	s.mu.Lock()
	if s.pendingOffer == nil {
		s.mu.Unlock()
		return domain.ErrNoPendingOffer
	}
	from := s.pendingOffer.From
	s.pendingOffer = nil
	s.mu.Unlock()

	if err := s.signaling.Clear(ctx, s.myID); err != nil {
		return fmt.Errorf("failed to clear mailbox: %w", err)
	}

	s.logger.Infow("offer rejected", "from", from)
	return nil
}

func (s *SessionServiceImpl) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.session.Active() {
		s.mu.Unlock()
		return domain.ErrNoSession
	}
	engine := s.engine
	s.mu.Unlock()

	// Best effort: the close below tears the channel down anyway.
	_ = s.SendFrame(protocol.TypeDisconnect, nil)

	if engine != nil {
		_ = engine.Close()
	}
	s.teardown(nil)
	return nil
}

// HandleLocalCommand applies a local playback command and mirrors it to the
// partner. Remote-origin commands never pass through here, so nothing a peer
// sends can be echoed back at it.
func (s *SessionServiceImpl) HandleLocalCommand(ctx context.Context, cmd domain.PlaybackCommand) error {
	if cmd.Origin != domain.OriginLocal {
		return fmt.Errorf("only local-origin commands can be broadcast (got %s)", cmd.Origin)
	}

	s.mu.Lock()
	open := s.session.ChannelOpen
	s.mu.Unlock()
	if !open {
		return domain.ErrNoSession
	}

	if s.playback != nil {
		if err := s.playback.Apply(ctx, cmd); err != nil {
			return fmt.Errorf("local playback apply failed: %w", err)
		}
	}

	frameType, payload := commandToFrame(cmd)
	if err := s.SendFrame(frameType, payload); err != nil {
		return fmt.Errorf("failed to mirror %s: %w", cmd.Action, err)
	}
	return nil
}

// SendFrame implements ports.FrameSender.
func (s *SessionServiceImpl) SendFrame(frameType protocol.MessageType, payload interface{}) error {
	s.mu.Lock()
	engine := s.engine
	open := s.session.ChannelOpen
	s.mu.Unlock()

	if engine == nil || !open {
		return domain.ErrChannelClosed
	}

	frame, err := protocol.Encode(frameType, payload)
	if err != nil {
		return err
	}
	data, err := frame.Marshal()
	if err != nil {
		return err
	}
	if !engine.Send(data) {
		return domain.ErrChannelClosed
	}
	if s.metrics != nil {
		s.metrics.RecordFrameSent(frameType)
	}
	return nil
}

func (s *SessionServiceImpl) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *SessionServiceImpl) PendingOffer() *domain.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingOffer == nil {
		return nil
	}
	offer := *s.pendingOffer
	return &offer
}

func (s *SessionServiceImpl) callbacks() ports.EngineCallbacks {
	return ports.EngineCallbacks{
		OnOpen:    s.onChannelOpen,
		OnMessage: s.onMessage,
		OnClose:   s.onEngineClose,
		OnQuality: s.onQuality,
	}
}

func (s *SessionServiceImpl) onChannelOpen() {
	s.mu.Lock()
	s.session.State = domain.SessionConnected
	s.session.ChannelOpen = true
	s.session.StartedAt = time.Now()
	s.publishStateLocked()

	sessionCtx, cancel := context.WithCancel(context.Background())
	s.cancelSession = cancel
	remote, role := s.session.RemoteID, s.session.Role
	s.mu.Unlock()

	s.logger.Infow("session connected", "remote", remote, "role", role)

	go s.heartbeatLoop(sessionCtx)
	go s.watchRemotePresence(sessionCtx, remote)
	go func() {
		if err := s.library.StartSync(sessionCtx); err != nil {
			s.logger.Warnw("library sync did not complete", "error", err)
		}
	}()
}

// watchRemotePresence republishes the partner's presence transitions on the
// event stream for the lifetime of the session, so the UI can show the
// partner dropping off before the transport notices.
func (s *SessionServiceImpl) watchRemotePresence(ctx context.Context, remote domain.PeerID) {
	updates, err := s.presence.Observe(ctx, remote)
	if err != nil {
		s.logger.Warnw("failed to observe partner presence", "remote", remote, "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-updates:
			if !ok {
				return
			}
			s.publish(domain.EventPresence, rec)
		}
	}
}

func (s *SessionServiceImpl) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SendFrame(protocol.TypeHeartbeat, nil); err != nil {
				return
			}
		}
	}
}

func (s *SessionServiceImpl) onMessage(data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warnw("dropping undecodable frame", "error", err)
		s.recordDropped()
		return
	}
	payload, err := protocol.DecodePayload(frame)
	if err != nil {
		s.logger.Warnw("dropping malformed frame", "type", frame.Type, "error", err)
		s.recordDropped()
		return
	}
	if s.metrics != nil {
		s.metrics.RecordFrameReceived(frame.Type)
	}

	ctx := context.Background()

	switch frame.Type {
	case protocol.TypePlay, protocol.TypePause, protocol.TypeResume, protocol.TypeSeek,
		protocol.TypeNext, protocol.TypePrevious, protocol.TypeShuffle, protocol.TypeRepeat,
		protocol.TypeAddToQueue, protocol.TypeClearQueue:
		cmd, err := frameToCommand(frame.Type, payload)
		if err != nil {
			s.logger.Warnw("dropping playback frame", "type", frame.Type, "error", err)
			return
		}
		if s.playback != nil {
			if err := s.playback.Apply(ctx, cmd); err != nil {
				s.logger.Warnw("remote playback apply failed", "action", cmd.Action, "error", err)
			}
		}

	case protocol.TypeSyncLibrary:
		if err := s.library.HandleSyncLibrary(ctx, payload.(*protocol.SyncLibraryPayload)); err != nil {
			s.logger.Warnw("library sync handling failed", "error", err)
		}

	case protocol.TypeSyncResponse:
		if err := s.library.HandleSyncResponse(ctx, payload.(*protocol.SyncResponsePayload)); err != nil {
			s.logger.Warnw("sync response handling failed", "error", err)
		}

	case protocol.TypeChatMessage, protocol.TypeVoiceMessage, protocol.TypeTypingStart,
		protocol.TypeTypingStop, protocol.TypeMessageDelivered, protocol.TypeMessageRead:
		if err := s.chat.HandleFrame(ctx, frame.Type, payload); err != nil {
			s.logger.Warnw("chat frame handling failed", "type", frame.Type, "error", err)
		}

	case protocol.TypeDisconnect:
		s.logger.Infow("partner disconnected", "remote", s.session.RemoteID)
		s.mu.Lock()
		engine := s.engine
		s.mu.Unlock()
		if engine != nil {
			_ = engine.Close()
		}
		s.teardown(nil)

	case protocol.TypeConnectionRequest, protocol.TypeConnectionAccept, protocol.TypeConnectionReject:
		s.logger.Debugw("connection control frame", "type", frame.Type)

	case protocol.TypeHeartbeat:
		// Keepalive only.

	default:
		s.logger.Warnw("dropping frame of unknown type", "type", frame.Type)
		s.recordDropped()
	}
}

func (s *SessionServiceImpl) recordDropped() {
	if s.metrics != nil {
		s.metrics.RecordFrameDropped()
	}
}

func (s *SessionServiceImpl) onQuality(score int) {
	s.mu.Lock()
	s.session.QualityScore = score
	s.publishStateLocked()
	s.mu.Unlock()
}

func (s *SessionServiceImpl) onEngineClose(reason error) {
	if reason != nil {
		s.logger.Warnw("transport closed", "error", reason)
	}
	s.teardown(reason)
}

// teardown moves the session to its terminal state and resets every piece of
// session-derived state: common library, chat history, mailbox.
func (s *SessionServiceImpl) teardown(reason error) {
	s.mu.Lock()
	if s.session.State == domain.SessionIdle ||
		s.session.State == domain.SessionDisconnected ||
		s.session.State == domain.SessionError {
		s.mu.Unlock()
		return
	}

	if s.cancelSession != nil {
		s.cancelSession()
		s.cancelSession = nil
	}
	s.engine = nil
	s.session.ChannelOpen = false
	if reason != nil {
		s.session.State = domain.SessionError
		s.publishLocked(domain.EventSessionError, reason.Error())
	} else {
		s.session.State = domain.SessionDisconnected
	}
	s.publishStateLocked()
	remote := s.session.RemoteID
	s.mu.Unlock()

	s.library.Reset()
	s.chat.Reset()
	if err := s.signaling.Clear(context.Background(), s.myID); err != nil {
		s.logger.Warnw("failed to clear mailbox on teardown", "error", err)
	}

	s.logger.Infow("session ended", "remote", remote, "error", reason)
}

// fail marks a connection attempt as failed. Caller must not hold the lock.
func (s *SessionServiceImpl) fail(err error) {
	s.mu.Lock()
	s.failLocked(err)
	s.mu.Unlock()
}

func (s *SessionServiceImpl) failLocked(err error) {
	if s.engine != nil {
		_ = s.engine.Close()
		s.engine = nil
	}
	s.session.State = domain.SessionError
	s.session.ChannelOpen = false
	s.publishLocked(domain.EventSessionError, err.Error())
	s.publishStateLocked()
	s.logger.Errorw("session attempt failed", "remote", s.session.RemoteID, "error", err)
}

func (s *SessionServiceImpl) setStateLocked(state domain.SessionState) {
	s.session.State = state
	s.publishStateLocked()
}

func (s *SessionServiceImpl) publishStateLocked() {
	s.publishLocked(domain.EventSessionState, s.session)
}

func (s *SessionServiceImpl) publishLocked(t domain.EventType, payload interface{}) {
	s.publish(t, payload)
}

func (s *SessionServiceImpl) publish(t domain.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(domain.Event{
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func commandToFrame(cmd domain.PlaybackCommand) (protocol.MessageType, interface{}) {
	switch cmd.Action {
	case domain.ActionPlay:
		return protocol.TypePlay, protocol.PlayPayload{SongHash: cmd.SongDigest, Position: cmd.PositionMs}
	case domain.ActionPause:
		return protocol.TypePause, nil
	case domain.ActionResume:
		return protocol.TypeResume, nil
	case domain.ActionSeek:
		return protocol.TypeSeek, protocol.SeekPayload{Position: cmd.PositionMs}
	case domain.ActionNext:
		return protocol.TypeNext, nil
	case domain.ActionPrevious:
		return protocol.TypePrevious, nil
	case domain.ActionShuffle:
		return protocol.TypeShuffle, protocol.ShufflePayload{Enabled: cmd.Enabled}
	case domain.ActionRepeat:
		return protocol.TypeRepeat, protocol.RepeatPayload{Mode: string(cmd.Repeat)}
	case domain.ActionAddToQueue:
		return protocol.TypeAddToQueue, protocol.QueuePayload{SongHash: cmd.SongDigest}
	case domain.ActionClearQueue:
		return protocol.TypeClearQueue, nil
	default:
		return protocol.TypeHeartbeat, nil
	}
}

func frameToCommand(t protocol.MessageType, payload interface{}) (domain.PlaybackCommand, error) {
	cmd := domain.PlaybackCommand{Origin: domain.OriginRemote}
	switch t {
	case protocol.TypePlay:
		p, ok := payload.(*protocol.PlayPayload)
		if !ok {
			return cmd, fmt.Errorf("unexpected PLAY payload")
		}
		cmd.Action = domain.ActionPlay
		cmd.SongDigest = p.SongHash
		cmd.PositionMs = p.Position
	case protocol.TypePause:
		cmd.Action = domain.ActionPause
	case protocol.TypeResume:
		cmd.Action = domain.ActionResume
	case protocol.TypeSeek:
		p, ok := payload.(*protocol.SeekPayload)
		if !ok {
			return cmd, fmt.Errorf("unexpected SEEK payload")
		}
		cmd.Action = domain.ActionSeek
		cmd.PositionMs = p.Position
	case protocol.TypeNext:
		cmd.Action = domain.ActionNext
	case protocol.TypePrevious:
		cmd.Action = domain.ActionPrevious
	case protocol.TypeShuffle:
		p, ok := payload.(*protocol.ShufflePayload)
		if !ok {
			return cmd, fmt.Errorf("unexpected SHUFFLE payload")
		}
		cmd.Action = domain.ActionShuffle
		cmd.Enabled = p.Enabled
	case protocol.TypeRepeat:
		p, ok := payload.(*protocol.RepeatPayload)
		if !ok {
			return cmd, fmt.Errorf("unexpected REPEAT payload")
		}
		cmd.Action = domain.ActionRepeat
		cmd.Repeat = domain.RepeatMode(p.Mode)
	case protocol.TypeAddToQueue:
		p, ok := payload.(*protocol.QueuePayload)
		if !ok {
			return cmd, fmt.Errorf("unexpected ADD_TO_QUEUE payload")
		}
		cmd.Action = domain.ActionAddToQueue
		cmd.SongDigest = p.SongHash
	case protocol.TypeClearQueue:
		cmd.Action = domain.ActionClearQueue
	default:
		return cmd, fmt.Errorf("not a playback frame: %s", t)
	}
	return cmd, nil
}
