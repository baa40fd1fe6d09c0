// Package stats aggregates verification attempts made through the screen server.
package stats

import (
	"sync"
	"time"

	"github.com/example/selfie-check/internal/screen"
)

// Summary represents aggregated verification insights since the server started.
type Summary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	VerifiedRequests   int64   `json:"verified_requests"`
	SkippedRequests    int64   `json:"skipped_requests"`
	SuccessRate        float64 `json:"success_rate"`
	VerifiedRate       float64 `json:"verified_rate"`
	AverageScore       float64 `json:"average_score"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

// Verifications counts verify outcomes in memory. Scores are summed, never stored per user.
type Verifications struct {
	mu         sync.Mutex
	total      int64
	successful int64
	verified   int64
	skipped    int64
	scoreSum   float64
	latencySum time.Duration
}

func NewVerifications() *Verifications {
	return &Verifications{}
}

// Record adds one verification attempt. Skipped attempts never reached the backend and carry
// no latency.
func (v *Verifications) Record(outcome screen.VerifyOutcome, latency time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if outcome.Status == screen.Skipped {
		v.skipped++
		return
	}
	v.total++
	v.latencySum += latency
	if outcome.Status != screen.Succeeded || outcome.Result == nil {
		return
	}
	v.successful++
	v.scoreSum += outcome.Result.SimilarityScore
	if screen.Classify(outcome.Result.SimilarityScore) == screen.BranchVerified {
		v.verified++
	}
}

// Summary returns the current aggregates.
func (v *Verifications) Summary() Summary {
	v.mu.Lock()
	defer v.mu.Unlock()

	summary := Summary{
		TotalRequests:      v.total,
		SuccessfulRequests: v.successful,
		VerifiedRequests:   v.verified,
		SkippedRequests:    v.skipped,
	}
	if v.total > 0 {
		summary.SuccessRate = float64(v.successful) / float64(v.total)
		summary.AverageLatencyMs = float64(v.latencySum.Milliseconds()) / float64(v.total)
	}
	if v.successful > 0 {
		summary.VerifiedRate = float64(v.verified) / float64(v.successful)
		summary.AverageScore = v.scoreSum / float64(v.successful)
	}
	return summary
}
