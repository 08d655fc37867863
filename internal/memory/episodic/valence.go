// Package episodic records per-session interaction dynamics and scores them
// with a decaying valence. It is a standalone writer: nothing in the recall
// path consults it.
package episodic

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Interaction modes.
const (
	ModeOperational   = "operational"
	ModeAnalytical    = "analytical"
	ModePhilosophical = "philosophical"
	ModeCreative      = "creative"
	ModeMixed         = "mixed"
)

// Depth trajectories. Deepening sessions score highest.
const (
	DepthDeepening   = "deepening"
	DepthSustained   = "sustained"
	DepthSurfacing   = "surfacing"
	DepthOscillating = "oscillating"
)

// Trust levels, ordered. Trust only moves forward across sessions.
const (
	TrustEstablishing = "establishing"
	TrustOperational  = "operational"
	TrustHigh         = "high"
	TrustGenerative   = "generative"
)

var trustOrder = []string{TrustEstablishing, TrustOperational, TrustHigh, TrustGenerative}

// Engagement levels.
const (
	EngagementLow      = "low"
	EngagementModerate = "moderate"
	EngagementHigh     = "high"
	EngagementVeryHigh = "very_high"
	EngagementMaximum  = "maximum"
)

// Record captures one session's dynamics, computed from observable signals.
// Notes is the single subjective field.
type Record struct {
	SessionID              string   `json:"session_id"`
	Transcript             string   `json:"transcript,omitempty"`
	Timestamp              string   `json:"timestamp"`
	InteractionMode        string   `json:"interaction_mode"`
	DepthTrajectory        string   `json:"depth_trajectory"`
	BreakthroughCount      int      `json:"breakthrough_count"`
	CorrectionCount        int      `json:"correction_count"`
	Valence                float64  `json:"valence"`
	TrustLevel             string   `json:"trust_level"`
	InteractionSpaceActive bool     `json:"interaction_space_active"`
	EffectivePatterns      []string `json:"effective_patterns,omitempty"`
	FrictionPatterns       []string `json:"friction_patterns,omitempty"`
	Engagement             string   `json:"engagement"`
	TimeOfDay              string   `json:"time_of_day,omitempty"`
	DurationEstimate       string   `json:"session_duration_estimate,omitempty"`
	SemanticTopics         []string `json:"semantic_topics,omitempty"`
	PrecedingSessionID     string   `json:"preceding_session_id,omitempty"`
	Notes                  string   `json:"notes,omitempty"`
	ArtifactsCreated       []string `json:"artifacts_created,omitempty"`
}

// Signal weights for the valence composite.
const (
	weightDepth            = 0.25
	weightBreakthrough     = 0.18
	weightInteractionSpace = 0.18
	weightArtifact         = 0.14
	weightEngagement       = 0.15
	weightCorrection       = 0.05
	weightDuration         = 0.05
)

var depthScores = map[string]float64{
	DepthDeepening:   0.85,
	DepthSustained:   0.55,
	DepthSurfacing:   0.30,
	DepthOscillating: 0.35,
}

var engagementScores = map[string]float64{
	EngagementLow:      0.20,
	EngagementModerate: 0.40,
	EngagementHigh:     0.65,
	EngagementVeryHigh: 0.85,
	EngagementMaximum:  1.00,
}

var durationThresholds = []struct {
	hours float64
	score float64
}{
	{6.0, 1.00},
	{4.0, 0.80},
	{3.0, 0.60},
	{1.5, 0.40},
	{0.5, 0.20},
	{0.0, 0.10},
}

// ComputeValence scores a record from its observable signals, in [0, 1].
func ComputeValence(record *Record) float64 {
	depthScore, ok := depthScores[record.DepthTrajectory]
	if !ok {
		depthScore = 0.50
	}

	// Diminishing returns past six breakthroughs.
	breakthroughScore := math.Min(float64(record.BreakthroughCount)/6.0, 1.0)

	interactionScore := 0.0
	if record.InteractionSpaceActive {
		interactionScore = 1.0
	}

	artifactScore := math.Min(float64(len(record.ArtifactsCreated))/8.0, 1.0)

	engagementScore, ok := engagementScores[record.Engagement]
	if !ok {
		engagementScore = 0.40
	}

	correctionScore := math.Max(1.0-float64(record.CorrectionCount)*0.25, 0.0)

	valence := weightDepth*depthScore +
		weightBreakthrough*breakthroughScore +
		weightInteractionSpace*interactionScore +
		weightArtifact*artifactScore +
		weightEngagement*engagementScore +
		weightCorrection*correctionScore +
		weightDuration*durationScore(record.DurationEstimate)

	return round(math.Max(0, math.Min(1, valence)), 2)
}

// durationScore parses estimates like "2-3 hours", "45 minutes", "6h+" into
// a bucketed score.
func durationScore(estimate string) float64 {
	estimate = strings.ToLower(strings.TrimSpace(estimate))
	if estimate == "" || estimate == "unknown" {
		return 0.40
	}

	var hours float64
	var err error
	switch {
	case strings.Contains(estimate, "minute"):
		var minutes float64
		minutes, err = parseLeadingNumber(estimate)
		hours = minutes / 60
	case strings.Contains(estimate, "+"):
		hours, err = parseLeadingNumber(strings.SplitN(estimate, "+", 2)[0])
	case strings.Contains(estimate, "-"):
		parts := strings.SplitN(estimate, "-", 2)
		var low, high float64
		low, err = parseLeadingNumber(parts[0])
		if err == nil {
			high, err = parseLeadingNumber(parts[1])
		}
		hours = (low + high) / 2
	default:
		hours, err = parseLeadingNumber(estimate)
	}
	if err != nil {
		return 0.40
	}

	for _, bucket := range durationThresholds {
		if hours >= bucket.hours {
			return bucket.score
		}
	}
	return 0.10
}

func parseLeadingNumber(text string) (float64, error) {
	var digits strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			digits.WriteRune(r)
		}
	}
	return strconv.ParseFloat(digits.String(), 64)
}

// Decay tiers: strong valence persists longer than weak.
const (
	highValenceThreshold = 0.80
	midValenceThreshold  = 0.50

	highDecayPerDay = 0.02
	midDecayPerDay  = 0.05
	lowDecayPerDay  = 0.10
)

// ComputeEffectiveValence applies the time-weighted decay:
// effective = raw × (1 − rate)^days.
func ComputeEffectiveValence(raw float64, sessionTime, now time.Time) float64 {
	days := now.Sub(sessionTime).Hours() / 24
	if days <= 0 {
		return raw
	}
	effective := raw * math.Pow(1-decayRate(raw), days)
	return round(math.Max(0, effective), 3)
}

// HalfLifeDays reports when a valence reaches half its original strength.
func HalfLifeDays(raw float64) float64 {
	return round(-math.Log(2)/math.Log(1-decayRate(raw)), 1)
}

func decayRate(raw float64) float64 {
	switch {
	case raw >= highValenceThreshold:
		return highDecayPerDay
	case raw >= midValenceThreshold:
		return midDecayPerDay
	default:
		return lowDecayPerDay
	}
}

// defaultValenceWeight blends similarity with affective history: 80%
// semantic, 20% valence.
const defaultValenceWeight = 0.20

// BlendedScore combines a similarity score with the record's decayed valence.
func BlendedScore(similarity float64, record *Record, now time.Time) float64 {
	sessionTime, err := time.Parse(time.RFC3339, record.Timestamp)
	if err != nil {
		sessionTime = now
	}
	effective := ComputeEffectiveValence(record.Valence, sessionTime, now)
	effective = math.Max(0, math.Min(1, effective))
	return round((1-defaultValenceWeight)*similarity+defaultValenceWeight*effective, 4)
}

// ScoredRecord pairs a record with its effective valence.
type ScoredRecord struct {
	Record    *Record
	Effective float64
}

// RankByValence orders records by decayed valence, strongest first.
func RankByValence(records []*Record, now time.Time) []ScoredRecord {
	scored := make([]ScoredRecord, 0, len(records))
	for _, record := range records {
		sessionTime, err := time.Parse(time.RFC3339, record.Timestamp)
		if err != nil {
			sessionTime = now
		}
		scored = append(scored, ScoredRecord{
			Record:    record,
			Effective: ComputeEffectiveValence(record.Valence, sessionTime, now),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Effective > scored[j].Effective
	})
	return scored
}

// InheritTrust returns the highest trust level observed; trust never drops.
func InheritTrust(records []*Record) string {
	maxIdx := 0
	for _, record := range records {
		for idx, level := range trustOrder {
			if record.TrustLevel == level && idx > maxIdx {
				maxIdx = idx
			}
		}
	}
	return trustOrder[maxIdx]
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
