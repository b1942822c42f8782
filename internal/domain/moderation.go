package domain

// ModerationCategory labels the kind of content a moderation check flagged.
type ModerationCategory string

const (
	ModerationSafe           ModerationCategory = "SAFE"
	ModerationToxic          ModerationCategory = "TOXIC"
	ModerationDataTheft      ModerationCategory = "DATA_THEFT"
	ModerationSecurityThreat ModerationCategory = "SECURITY_THREAT"
	ModerationSpam           ModerationCategory = "SPAM"
	ModerationSuspiciousLink ModerationCategory = "SUSPICIOUS_LINK"
	ModerationInappropriate  ModerationCategory = "INAPPROPRIATE"
	ModerationInvalid        ModerationCategory = "INVALID"
)

// Recommendation is the action a caller should take with a classified input.
type Recommendation string

const (
	RecommendAllow  Recommendation = "ALLOW"
	RecommendReview Recommendation = "REVIEW"
	RecommendBlock  Recommendation = "BLOCK"
)

// ModerationResult is a pure value produced fresh per check.
type ModerationResult struct {
	Safe           bool
	Category       ModerationCategory
	Confidence     float64
	Recommendation Recommendation
	FlaggedTerms   []string
}
