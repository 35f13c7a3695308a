package webrtc

import (
	"duosync/internal/core/ports"
	"duosync/internal/core/services"
	"duosync/pkg/config"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// EngineFactory builds a fresh PeerEngine per session attempt.
type EngineFactory struct {
	config  EngineConfig
	quality *services.QualityService
	logger  *zap.SugaredLogger
}

func NewEngineFactory(cfg *config.Config, quality *services.QualityService, logger *zap.SugaredLogger) *EngineFactory {
	engineConfig := EngineConfig{
		GatheringTimeout: cfg.WebRTC.GatheringTimeout,
		ChannelLabel:     cfg.WebRTC.ChannelLabel,
		QualityInterval:  cfg.Session.QualityInterval,
	}
	engineConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	engineConfig.PortRange.Max = cfg.WebRTC.PortRange.Max

	for _, server := range cfg.WebRTC.ICEServers {
		ice := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" {
			ice.Username = server.Username
			ice.Credential = server.Credential
		}
		engineConfig.ICEServers = append(engineConfig.ICEServers, ice)
	}

	return &EngineFactory{
		config:  engineConfig,
		quality: quality,
		logger:  logger,
	}
}

func (f *EngineFactory) NewEngine(cb ports.EngineCallbacks) (ports.SessionEngine, error) {
	return NewPeerEngine(f.config, f.quality, cb, f.logger)
}
