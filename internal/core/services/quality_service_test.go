package services

import (
	"testing"
	"time"

	"duosync/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestQualityScoreCleanLink(t *testing.T) {
	qs := NewQualityService()
	score := qs.Score(domain.TransportSample{RTT: 20 * time.Millisecond, LossRate: 0})
	assert.Equal(t, 100, score)
}

func TestQualityScoreRTTTiers(t *testing.T) {
	qs := NewQualityService()
	tests := []struct {
		rtt  time.Duration
		want int
	}{
		{30 * time.Millisecond, 100},
		{80 * time.Millisecond, 95},
		{200 * time.Millisecond, 85},
		{400 * time.Millisecond, 70},
		{800 * time.Millisecond, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, qs.Score(domain.TransportSample{RTT: tt.rtt}), "rtt=%s", tt.rtt)
	}
}

func TestQualityScoreLossTiers(t *testing.T) {
	qs := NewQualityService()
	tests := []struct {
		loss float64
		want int
	}{
		{0.0, 100},
		{0.015, 95},
		{0.03, 85},
		{0.07, 75},
		{0.2, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, qs.Score(domain.TransportSample{LossRate: tt.loss}), "loss=%f", tt.loss)
	}
}

func TestQualityScorePenaltiesAdd(t *testing.T) {
	qs := NewQualityService()
	score := qs.Score(domain.TransportSample{RTT: 800 * time.Millisecond, LossRate: 0.2})
	assert.Equal(t, 10, score)
}

func TestQualityScoreNeverNegative(t *testing.T) {
	qs := NewQualityService()
	score := qs.Score(domain.TransportSample{RTT: time.Minute, LossRate: 1.0})
	assert.GreaterOrEqual(t, score, 0)
}

func TestQualityWorseSampleNeverScoresHigher(t *testing.T) {
	qs := NewQualityService()
	prev := 101
	for _, rtt := range []time.Duration{0, 60, 160, 310, 510, 900} {
		score := qs.Score(domain.TransportSample{RTT: rtt * time.Millisecond})
		assert.LessOrEqual(t, score, prev)
		prev = score
	}
}
