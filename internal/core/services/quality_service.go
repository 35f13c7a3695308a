package services

import (
	"time"

	"duosync/internal/core/domain"
)

// DefaultQualityScore is reported before the first transport sample arrives.
const DefaultQualityScore = 80

// QualityService turns raw transport samples into the 0-100 connection
// quality score shown next to the session.
type QualityService struct{}

func NewQualityService() *QualityService {
	return &QualityService{}
}

// Score derives the quality score from one sample. RTT and loss penalties are
// independent and additive.
func (qs *QualityService) Score(sample domain.TransportSample) int {
	score := 100

	switch {
	case sample.RTT > 500*time.Millisecond:
		score -= 50
	case sample.RTT > 300*time.Millisecond:
		score -= 30
	case sample.RTT > 150*time.Millisecond:
		score -= 15
	case sample.RTT > 50*time.Millisecond:
		score -= 5
	}

	switch {
	case sample.LossRate > 0.10:
		score -= 40
	case sample.LossRate > 0.05:
		score -= 25
	case sample.LossRate > 0.02:
		score -= 15
	case sample.LossRate > 0.01:
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	return score
}
