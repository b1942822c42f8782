package moderation

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// Gate implements the ModerationService port. It runs ordered rule stages
// and short-circuits at the first stage that reports unsafe, so a security
// BLOCK is never downgraded by a later, lower-confidence spam rule.
type Gate struct {
	dataTheftPatterns []*regexp.Regexp
	injectionPatterns []*regexp.Regexp
	shortURLPattern   *regexp.Regexp
	toxicTerms        []string
	inappropriate     []string
}

// RulesFile is the YAML schema for overridable keyword lists.
type RulesFile struct {
	Rules struct {
		ToxicTerms         []string `yaml:"toxic_terms"`
		InappropriateTerms []string `yaml:"inappropriate_terms"`
	} `yaml:"rules"`
}

const maxInputLength = 5000

// NewGate loads moderation rules from disk (or defaults when missing).
func NewGate(path string) (*Gate, error) {
	rules, err := loadRules(path)
	if err != nil {
		return nil, err
	}
	return &Gate{
		dataTheftPatterns: compileAll(dataTheftExpressions),
		injectionPatterns: compileAll(injectionExpressions),
		shortURLPattern:   regexp.MustCompile(`(?i)\b(bit\.ly|tinyurl\.com|goo\.gl|t\.co|ow\.ly|is\.gd|buff\.ly)/\S+`),
		toxicTerms:        rules.Rules.ToxicTerms,
		inappropriate:     rules.Rules.InappropriateTerms,
	}, nil
}

// Check implements ports.ModerationService. It never blocks and never
// errors; empty input is classified INVALID/BLOCK instead.
func (g *Gate) Check(text string) domain.ModerationResult {
	if strings.TrimSpace(text) == "" {
		return unsafe(domain.ModerationInvalid, 1, domain.RecommendBlock, nil)
	}

	if terms := matchAny(g.dataTheftPatterns, text); len(terms) > 0 {
		return unsafe(domain.ModerationDataTheft, 0.95, domain.RecommendBlock, terms)
	}
	if terms := matchAny(g.injectionPatterns, text); len(terms) > 0 {
		return unsafe(domain.ModerationSecurityThreat, 0.95, domain.RecommendBlock, terms)
	}
	if terms := containedTerms(text, g.toxicTerms); len(terms) > 0 {
		return unsafe(domain.ModerationToxic, 0.9, domain.RecommendBlock, terms)
	}
	if terms := containedTerms(text, g.inappropriate); len(terms) > 0 {
		return unsafe(domain.ModerationInappropriate, 0.8, domain.RecommendReview, terms)
	}
	if result, flagged := g.checkSpam(text); flagged {
		return result
	}
	if g.shortURLPattern.MatchString(text) {
		return unsafe(domain.ModerationSuspiciousLink, 0.8, domain.RecommendReview,
			[]string{g.shortURLPattern.FindString(text)})
	}

	return domain.ModerationResult{
		Safe:           true,
		Category:       domain.ModerationSafe,
		Confidence:     0.95,
		Recommendation: domain.RecommendAllow,
	}
}

// checkSpam runs the spam heuristics in order; the first triggered wins.
func (g *Gate) checkSpam(text string) (domain.ModerationResult, bool) {
	if len(text) > 10 && hasUppercaseRun(text, 5) {
		return unsafe(domain.ModerationSpam, 0.7, domain.RecommendReview, []string{"excessive caps"}), true
	}
	if pair := repeatedPair(text, 5); pair != "" {
		return unsafe(domain.ModerationSpam, 0.8, domain.RecommendBlock, []string{pair}), true
	}
	if hasSymbolRun(text, 4) {
		return unsafe(domain.ModerationSpam, 0.6, domain.RecommendReview, []string{"symbol run"}), true
	}
	if len(text) > maxInputLength {
		return unsafe(domain.ModerationSpam, 0.9, domain.RecommendBlock, []string{"input too long"}), true
	}
	if tokens := strings.Fields(text); len(tokens) > 10 && uniqueRatio(tokens) < 0.3 {
		return unsafe(domain.ModerationSpam, 0.8, domain.RecommendReview, []string{"repetitive tokens"}), true
	}
	return domain.ModerationResult{}, false
}

func unsafe(category domain.ModerationCategory, confidence float64, rec domain.Recommendation, terms []string) domain.ModerationResult {
	return domain.ModerationResult{
		Safe:           false,
		Category:       category,
		Confidence:     confidence,
		Recommendation: rec,
		FlaggedTerms:   terms,
	}
}

var dataTheftExpressions = []string{
	`(?i)\b(steal|dump|leak|exfiltrate|harvest)\b.{0,40}\b(password|credential|database|api[ _-]?key|token)`,
	`(?i)\b(password|credential|token)s?\b.{0,40}\b(dump|leak|steal)`,
	`(?i)\b(admin|root)\s+(access|password|credential)s?\b`,
	`(?i)\bdatabase\s+dump\b`,
}

var injectionExpressions = []string{
	`(?i)\b(union\s+select|drop\s+table|insert\s+into|delete\s+from|truncate\s+table)\b`,
	`(?i)('|%27)\s*(or|and)\s+\d+\s*=\s*\d+`,
	`(?i);\s*--`,
	`(?i)<\s*script\b`,
}

func compileAll(expressions []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(expressions))
	for _, expr := range expressions {
		compiled = append(compiled, regexp.MustCompile(expr))
	}
	return compiled
}

func matchAny(patterns []*regexp.Regexp, text string) []string {
	var matched []string
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			matched = append(matched, m)
		}
	}
	return matched
}

func containedTerms(text string, terms []string) []string {
	lowered := strings.ToLower(text)
	var found []string
	for _, term := range terms {
		if strings.Contains(lowered, strings.ToLower(term)) {
			found = append(found, term)
		}
	}
	return found
}

func hasUppercaseRun(text string, minRun int) bool {
	run := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			run++
			if run >= minRun {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// repeatedPair reports a 2-character substring repeated at least minRepeats
// times consecutively, e.g. "ababababab".
func repeatedPair(text string, minRepeats int) string {
	for i := 0; i+2*minRepeats <= len(text); i++ {
		pair := text[i : i+2]
		count := 1
		for j := i + 2; j+2 <= len(text) && text[j:j+2] == pair; j += 2 {
			count++
		}
		if count >= minRepeats {
			return pair
		}
	}
	return ""
}

func hasSymbolRun(text string, minRun int) bool {
	run := 0
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			run++
			if run >= minRun {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func uniqueRatio(tokens []string) float64 {
	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		seen[strings.ToLower(token)] = true
	}
	return float64(len(seen)) / float64(len(tokens))
}

func loadRules(path string) (RulesFile, error) {
	var rules RulesFile
	path = expandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		// fall back to defaults
		rules.Rules.ToxicTerms = defaultToxicTerms()
		rules.Rules.InappropriateTerms = defaultInappropriateTerms()
		return rules, nil
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RulesFile{}, err
	}
	if len(rules.Rules.ToxicTerms) == 0 {
		rules.Rules.ToxicTerms = defaultToxicTerms()
	}
	if len(rules.Rules.InappropriateTerms) == 0 {
		rules.Rules.InappropriateTerms = defaultInappropriateTerms()
	}
	return rules, nil
}

func defaultToxicTerms() []string {
	return []string{
		"idiot", "moron", "worthless", "kill yourself", "i hate you", "pathetic loser",
	}
}

func defaultInappropriateTerms() []string {
	return []string{
		"nsfw", "explicit content", "nude", "porn",
	}
}

func expandPath(path string) string {
	if path == "" {
		return filepath.Join(userHomeDir(), ".taskora", "moderation.yaml")
	}
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(userHomeDir(), path[2:])
	}
	return filepath.Join(userHomeDir(), path)
}

func userHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

var _ ports.ModerationService = (*Gate)(nil)
