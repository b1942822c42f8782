package services

import (
	"strings"

	"github.com/taskora/taskora-ai/internal/domain"
)

// buildAnalysisPrompt embeds retrieved context and the transcript and asks
// the model for a fixed-shape JSON object.
func buildAnalysisPrompt(conv domain.Conversation, transcript string, docs []domain.Document) string {
	var b strings.Builder

	b.WriteString("You analyze team conversations from a task-management workspace.\n")
	b.WriteString("Classify the conversation and summarize it.\n\n")

	if len(docs) > 0 {
		b.WriteString("Workspace context:\n")
		for _, doc := range docs {
			b.WriteString("- ")
			b.WriteString(doc.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Conversation")
	if conv.Title != "" {
		b.WriteString(" \"")
		b.WriteString(conv.Title)
		b.WriteString("\"")
	}
	b.WriteString(":\n")
	b.WriteString(transcript)
	b.WriteString("\n\n")

	b.WriteString("Respond with a single JSON object of this exact shape:\n")
	b.WriteString(`{"summary": "...", "primary_category": "...", "secondary_categories": ["..."], "confidence": 0.0, "reasoning": "..."}`)
	b.WriteString("\n\nprimary_category and secondary_categories must be chosen from: ")
	b.WriteString(strings.Join([]string{
		string(domain.CategoryTaskPlanning),
		string(domain.CategoryBugReport),
		string(domain.CategoryDecision),
		string(domain.CategoryStatusUpdate),
		string(domain.CategoryEscalation),
		string(domain.CategoryMissingInfo),
		string(domain.CategoryOther),
	}, ", "))
	b.WriteString(".\nconfidence is a number between 0 and 1.")

	return b.String()
}
