package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/internal/core/services"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// EngineConfig carries the transport settings for a peer session.
type EngineConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// GatheringTimeout bounds the non-trickle candidate wait. After it fires
	// the SDP is used with whatever candidates were gathered.
	GatheringTimeout time.Duration
	ChannelLabel     string
	QualityInterval  time.Duration
}

// PeerEngine drives one webrtc.PeerConnection with a single ordered reliable
// data channel. Signaling is non-trickle: CreateOffer and CreateAnswer block
// until candidate gathering completes (or times out), so the returned SDP is
// self-contained and fits the one-slot mailbox.
type PeerEngine struct {
	config  EngineConfig
	quality *services.QualityService
	cb      ports.EngineCallbacks
	logger  *zap.SugaredLogger

	pc *webrtc.PeerConnection

	mu      sync.Mutex
	channel *webrtc.DataChannel
	score   int

	closeOnce sync.Once
	statsStop chan struct{}

	// STUN request/response counters from the previous stats sample, for
	// per-interval loss deltas.
	prevRequests  uint64
	prevResponses uint64
}

func NewPeerEngine(config EngineConfig, quality *services.QualityService, cb ports.EngineCallbacks, logger *zap.SugaredLogger) (*PeerEngine, error) {
	settingEngine := webrtc.SettingEngine{}
	if config.PortRange.Min > 0 && config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(config.PortRange.Min, config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("failed to set UDP port range: %w", err)
		}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	e := &PeerEngine{
		config:    config,
		quality:   quality,
		cb:        cb,
		logger:    logger,
		pc:        pc,
		score:     services.DefaultQualityScore,
		statsStop: make(chan struct{}),
	}

	pc.OnICEConnectionStateChange(e.handleICEConnectionState)
	// The answerer receives the channel the offerer created.
	pc.OnDataChannel(e.adoptChannel)

	return e, nil
}

func (e *PeerEngine) CreateOffer(ctx context.Context) (string, error) {
	ordered := true
	channel, err := e.pc.CreateDataChannel(e.config.ChannelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create data channel: %w", err)
	}
	e.adoptChannel(channel)

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	return e.settleLocalDescription(ctx, offer)
}

func (e *PeerEngine) CreateAnswer(ctx context.Context, offerSDP string) (string, error) {
	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		return "", fmt.Errorf("failed to apply remote offer: %w", err)
	}

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	return e.settleLocalDescription(ctx, answer)
}

// settleLocalDescription sets the local description and waits for candidate
// gathering so the returned SDP already carries the candidates.
func (e *PeerEngine) settleLocalDescription(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(e.pc)

	if err := e.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-time.After(e.config.GatheringTimeout):
		e.logger.Warnw("candidate gathering timed out, using partial SDP",
			"timeout", e.config.GatheringTimeout,
		)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := e.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description after gathering")
	}
	return local.SDP, nil
}

func (e *PeerEngine) SetRemoteAnswer(sdp string) error {
	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		return fmt.Errorf("failed to apply remote answer: %w", err)
	}
	return nil
}

func (e *PeerEngine) Send(data []byte) bool {
	e.mu.Lock()
	channel := e.channel
	e.mu.Unlock()

	if channel == nil || channel.ReadyState() != webrtc.DataChannelStateOpen {
		return false
	}
	if err := channel.Send(data); err != nil {
		e.logger.Warnw("data channel send failed", "error", err)
		return false
	}
	return true
}

func (e *PeerEngine) QualityScore() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

func (e *PeerEngine) Close() error {
	e.fireClose(nil)
	return nil
}

func (e *PeerEngine) adoptChannel(channel *webrtc.DataChannel) {
	e.mu.Lock()
	e.channel = channel
	e.mu.Unlock()

	channel.OnOpen(func() {
		e.logger.Infow("data channel open", "label", channel.Label())
		go e.statsLoop()
		if e.cb.OnOpen != nil {
			e.cb.OnOpen()
		}
	})
	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		if e.cb.OnMessage != nil {
			e.cb.OnMessage(msg.Data)
		}
	})
	channel.OnClose(func() {
		e.fireClose(nil)
	})
}

func (e *PeerEngine) handleICEConnectionState(state webrtc.ICEConnectionState) {
	e.logger.Infow("ICE connection state changed", "state", state)

	switch state {
	case webrtc.ICEConnectionStateFailed:
		e.fireClose(domain.ErrChannelClosed)
	case webrtc.ICEConnectionStateClosed:
		e.fireClose(nil)
	}
}

// statsLoop samples the nominated candidate pair on every tick and reports
// the derived quality score.
func (e *PeerEngine) statsLoop() {
	ticker := time.NewTicker(e.config.QualityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.statsStop:
			return
		case <-ticker.C:
			sample, ok := e.sample()
			if !ok {
				continue
			}
			score := e.quality.Score(sample)

			e.mu.Lock()
			e.score = score
			e.mu.Unlock()

			if e.cb.OnQuality != nil {
				e.cb.OnQuality(score)
			}
		}
	}
}

// sample extracts RTT and STUN request loss from the active candidate pair.
func (e *PeerEngine) sample() (domain.TransportSample, bool) {
	report := e.pc.GetStats()

	for _, stat := range report {
		pair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}

		sample := domain.TransportSample{
			Timestamp: time.Now(),
			RTT:       time.Duration(pair.CurrentRoundTripTime * float64(time.Second)),
		}

		// Loss over the last interval: STUN requests that never saw a
		// response.
		reqDelta := pair.RequestsSent - e.prevRequests
		respDelta := pair.ResponsesReceived - e.prevResponses
		e.prevRequests = pair.RequestsSent
		e.prevResponses = pair.ResponsesReceived
		if reqDelta > 0 && respDelta <= reqDelta {
			sample.LossRate = float64(reqDelta-respDelta) / float64(reqDelta)
		}

		return sample, true
	}
	return domain.TransportSample{}, false
}

func (e *PeerEngine) fireClose(reason error) {
	e.closeOnce.Do(func() {
		close(e.statsStop)

		e.mu.Lock()
		channel := e.channel
		e.channel = nil
		e.mu.Unlock()

		if channel != nil {
			_ = channel.Close()
		}
		if err := e.pc.Close(); err != nil {
			e.logger.Warnw("failed to close peer connection", "error", err)
		}
		if e.cb.OnClose != nil {
			e.cb.OnClose(reason)
		}
	})
}
