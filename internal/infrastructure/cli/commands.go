package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskora/taskora-ai/internal/app"
	"github.com/taskora/taskora-ai/internal/domain"
)

const version = "0.3.0"

func newAnalyzeCommand(container *app.Container) *cobra.Command {
	var (
		refresh       bool
		since         string
		until         string
		includeSystem bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [conversation-id]",
		Short: "Analyze a conversation through the orchestration pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.MessageFilter{IncludeSystem: includeSystem}
			var err error
			if filter.Since, err = parseTimeFlag(since); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if filter.Until, err = parseTimeFlag(until); err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			result, err := container.Analysis.Analyze(domain.AnalyzeRequest{
				Context:        cmd.Context(),
				ConversationID: args[0],
				ForceRefresh:   refresh,
				Filter:         filter,
			})
			if err != nil {
				return err
			}
			printAnalysis(cmd, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass caches and re-run the analysis")
	cmd.Flags().StringVar(&since, "since", "", "only analyze messages sent after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "only analyze messages sent before this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&includeSystem, "include-system", false, "include system messages in the transcript")
	return cmd
}

func printAnalysis(cmd *cobra.Command, result domain.AnalysisResult) {
	cmd.Printf("Conversation: %s\n", result.ConversationID)
	cmd.Printf("Category:     %s", result.PrimaryCategory)
	if len(result.SecondaryCategories) > 0 {
		secondary := make([]string, 0, len(result.SecondaryCategories))
		for _, c := range result.SecondaryCategories {
			secondary = append(secondary, string(c))
		}
		cmd.Printf(" (%s)", strings.Join(secondary, ", "))
	}
	cmd.Printf("\nConfidence:   %.2f\n", result.Confidence)
	cmd.Printf("Messages:     %d\n", result.MessageCount)
	cmd.Printf("Summary:      %s\n", result.Summary)
	if len(result.Metrics) > 0 {
		keys := make([]string, 0, len(result.Metrics))
		for k := range result.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("  %s: %s\n", k, result.Metrics[k])
		}
	}
}

func newModerateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "moderate [text]",
		Short: "Run the moderation gate over a piece of text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := container.Moderation.Check(strings.Join(args, " "))
			cmd.Printf("Category:       %s\n", result.Category)
			cmd.Printf("Recommendation: %s\n", result.Recommendation)
			cmd.Printf("Confidence:     %.2f\n", result.Confidence)
			if len(result.FlaggedTerms) > 0 {
				cmd.Printf("Flagged:        %s\n", strings.Join(result.FlaggedTerms, ", "))
			}
			return nil
		},
	}
}

// indexFile is the YAML schema consumed by the index command.
type indexFile struct {
	Documents []struct {
		ID       string            `yaml:"id"`
		Content  string            `yaml:"content"`
		Metadata map[string]string `yaml:"metadata"`
	} `yaml:"documents"`
}

func newIndexCommand(container *app.Container) *cobra.Command {
	var (
		file      string
		namespace string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Upsert context documents into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var parsed indexFile
			if err := yaml.Unmarshal(data, &parsed); err != nil {
				return err
			}
			docs := make([]domain.Document, 0, len(parsed.Documents))
			for _, doc := range parsed.Documents {
				docs = append(docs, domain.Document{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata})
			}
			if namespace == "" {
				namespace = container.Config.Retrieval.Namespace
			}
			if err := container.Retrieval.Index(cmd.Context(), docs, namespace); err != nil {
				return err
			}
			cmd.Printf("Indexed %d documents into %q\n", len(docs), namespace)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with documents to index")
	cmd.Flags().StringVar(&namespace, "namespace", "", "target namespace (defaults to the configured one)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSeedCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo conversation for local experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			conv := domain.Conversation{
				ID:        "demo-standup",
				Title:     "Sprint 12 standup",
				TeamID:    "team-demo",
				CreatedAt: now,
			}
			messages := []domain.Message{
				{ID: "demo-1", Sender: "alex", Body: "Payments retry queue is draining slower than expected.", SentAt: now.Add(-30 * time.Minute)},
				{ID: "demo-2", Sender: "dana", Body: "I can take the retry worker task, moving it into this sprint.", SentAt: now.Add(-25 * time.Minute)},
				{ID: "demo-3", Sender: "system", Body: "dana was assigned TASK-481", System: true, SentAt: now.Add(-24 * time.Minute)},
				{ID: "demo-4", Sender: "alex", Body: "Great, let's aim to ship the fix before Thursday's release.", SentAt: now.Add(-20 * time.Minute)},
			}
			if err := container.Conversations.Seed(cmd.Context(), conv, messages); err != nil {
				return err
			}
			cmd.Printf("Seeded conversation %q with %d messages\n", conv.ID, len(messages))
			return nil
		},
	}
}

func newConfigCommand(container *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := yaml.Marshal(container.Config)
			if err != nil {
				return err
			}
			cmd.Print(string(raw))
			return nil
		},
	})
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskora-ai version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("taskora-ai", version)
		},
	}
}

func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
