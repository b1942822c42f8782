package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/taskora/taskora-ai/internal/app"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, opts.Verbose)
	if err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:   "taskora-ai",
		Short: "taskora-ai - conversation analysis sidecar",
		Long:  "taskora-ai moderates, rate-limits, and analyzes workspace conversations through an external LLM.",
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return container.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newAnalyzeCommand(container))
	root.AddCommand(newModerateCommand(container))
	root.AddCommand(newIndexCommand(container))
	root.AddCommand(newSeedCommand(container))
	root.AddCommand(newConfigCommand(container))
	root.AddCommand(newVersionCommand())
	return root, nil
}
