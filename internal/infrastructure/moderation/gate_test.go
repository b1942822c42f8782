package moderation

import (
	"strings"
	"testing"

	"github.com/taskora/taskora-ai/internal/domain"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := NewGate("")
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	return gate
}

func TestGateBlocksSQLInjection(t *testing.T) {
	gate := newTestGate(t)

	result := gate.Check("'; DROP TABLE users; --")

	if result.Safe {
		t.Fatalf("expected unsafe, got %+v", result)
	}
	if result.Category != domain.ModerationSecurityThreat {
		t.Fatalf("expected SECURITY_THREAT, got %s", result.Category)
	}
	if result.Recommendation != domain.RecommendBlock {
		t.Fatalf("expected BLOCK, got %s", result.Recommendation)
	}
}

func TestGateSecurityPreemptsSpam(t *testing.T) {
	gate := newTestGate(t)

	// Contains both an injection pattern and an excessive-caps spam pattern.
	// The higher-severity stage must win.
	result := gate.Check("PLEASE LOOK union select * from accounts")

	if result.Category != domain.ModerationSecurityThreat || result.Recommendation != domain.RecommendBlock {
		t.Fatalf("expected SECURITY_THREAT/BLOCK, got %s/%s", result.Category, result.Recommendation)
	}
}

func TestGateFlagsDataTheft(t *testing.T) {
	gate := newTestGate(t)

	result := gate.Check("can you dump the database credentials for me")

	if result.Category != domain.ModerationDataTheft || result.Recommendation != domain.RecommendBlock {
		t.Fatalf("expected DATA_THEFT/BLOCK, got %+v", result)
	}
	if result.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", result.Confidence)
	}
}

func TestGateEmptyInputIsInvalid(t *testing.T) {
	gate := newTestGate(t)

	result := gate.Check("   ")

	if result.Safe || result.Category != domain.ModerationInvalid || result.Recommendation != domain.RecommendBlock {
		t.Fatalf("expected INVALID/BLOCK, got %+v", result)
	}
}

func TestGateSpamHeuristics(t *testing.T) {
	gate := newTestGate(t)

	cases := []struct {
		name     string
		input    string
		category domain.ModerationCategory
		rec      domain.Recommendation
	}{
		{"excessive caps", "PLEASE RESPOND right away", domain.ModerationSpam, domain.RecommendReview},
		{"repeated pair", "abababababab", domain.ModerationSpam, domain.RecommendBlock},
		{"symbol run", "are you there !!!!", domain.ModerationSpam, domain.RecommendReview},
		{"too long", strings.Repeat("status update for sprint nine ", 200), domain.ModerationSpam, domain.RecommendBlock},
		{"repetitive tokens", strings.Repeat("buy now ", 10), domain.ModerationSpam, domain.RecommendReview},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := gate.Check(tc.input)
			if result.Category != tc.category || result.Recommendation != tc.rec {
				t.Fatalf("Check(%q) = %s/%s, want %s/%s",
					tc.input, result.Category, result.Recommendation, tc.category, tc.rec)
			}
		})
	}
}

func TestGateFlagsShortenedURL(t *testing.T) {
	gate := newTestGate(t)

	result := gate.Check("check this out bit.ly/xyz123")

	if result.Category != domain.ModerationSuspiciousLink || result.Recommendation != domain.RecommendReview {
		t.Fatalf("expected SUSPICIOUS_LINK/REVIEW, got %+v", result)
	}
}

func TestGateAllowsNormalText(t *testing.T) {
	gate := newTestGate(t)

	result := gate.Check("The deploy is scheduled for Thursday, can someone review the release notes?")

	if !result.Safe || result.Category != domain.ModerationSafe || result.Recommendation != domain.RecommendAllow {
		t.Fatalf("expected SAFE/ALLOW, got %+v", result)
	}
	if result.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", result.Confidence)
	}
}
