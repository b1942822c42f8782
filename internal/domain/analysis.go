package domain

import (
	"context"
	"strings"
	"time"
)

// Category classifies what a conversation is about.
type Category string

const (
	CategoryTaskPlanning Category = "TASK_PLANNING"
	CategoryBugReport    Category = "BUG_REPORT"
	CategoryDecision     Category = "DECISION"
	CategoryStatusUpdate Category = "STATUS_UPDATE"
	CategoryEscalation   Category = "ESCALATION"
	CategoryMissingInfo  Category = "MISSING_INFO"
	CategoryOther        Category = "OTHER"
)

// ParseCategory maps a model-supplied category string onto a known category.
// Unrecognized values map to CategoryOther rather than failing.
func ParseCategory(value string) Category {
	switch Category(strings.ToUpper(strings.TrimSpace(value))) {
	case CategoryTaskPlanning:
		return CategoryTaskPlanning
	case CategoryBugReport:
		return CategoryBugReport
	case CategoryDecision:
		return CategoryDecision
	case CategoryStatusUpdate:
		return CategoryStatusUpdate
	case CategoryEscalation:
		return CategoryEscalation
	case CategoryMissingInfo:
		return CategoryMissingInfo
	default:
		return CategoryOther
	}
}

// AnalysisResult is the outcome of analyzing one conversation.
// Immutable once constructed; the durable store and the memory cache each
// hold independent copies keyed by ConversationID.
type AnalysisResult struct {
	ConversationID      string
	Summary             string
	PrimaryCategory     Category
	SecondaryCategories []Category
	Confidence          float64
	MessageCount        int
	GeneratedAt         time.Time
	Metrics             map[string]string
}

// MetricErrorReason is the metrics key that signals a degraded result.
const MetricErrorReason = "errorReason"

// Error reason tags carried in AnalysisResult.Metrics[MetricErrorReason].
const (
	ReasonRateLimited       = "RATE_LIMITED"
	ReasonUpstreamError     = "UPSTREAM_ERROR"
	ReasonParseError        = "PARSE_ERROR"
	ReasonModerationBlocked = "MODERATION_BLOCKED"
)

// MessageFilter narrows which messages feed an analysis.
type MessageFilter struct {
	Since         time.Time
	Until         time.Time
	IncludeSystem bool
}

// AnalyzeRequest captures one analysis invocation.
type AnalyzeRequest struct {
	Context        context.Context
	ConversationID string
	ForceRefresh   bool
	Filter         MessageFilter
}

// AnalysisService exposes the use-case boundary for conversation analysis.
type AnalysisService interface {
	Analyze(AnalyzeRequest) (AnalysisResult, error)
}
