package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zoobzio/sqb/internal/plan"
)

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <plan.yaml>",
		Short: "Apply a plan and print the resulting query",
		Long: `Apply a query plan and print the resulting DQL together with its
aliases and bound parameters. Lazy joins appear only when referenced.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, rootOpts, args[0])
		},
	}
}

func newFormatter(cmd *cobra.Command, rootOpts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}
}

func runRender(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	formatter := newFormatter(cmd, rootOpts)

	p, err := plan.Load(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeLoad, err)
	}
	formatter.VerboseLog("Loaded plan with %d entities and %d proposals", len(p.Entities), len(p.Proposals))

	res, err := p.Apply(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeApply, err.Error(), nil)
		return WrapExitError(ExitFailure, ErrCodeApply, err)
	}

	out := plan.Render(res.Session)
	if rootOpts.Format == "json" {
		return formatter.Success(out)
	}
	return formatter.Success(textRendered(out))
}

type textRendered plan.Rendered

func (r textRendered) String() string {
	var sb strings.Builder
	sb.WriteString(r.DQL)
	sb.WriteString("\n\nAliases: ")
	sb.WriteString(strings.Join(r.Aliases, ", "))
	if len(r.Parameters) > 0 {
		sb.WriteString("\n\nParameters:")
		for _, p := range r.Parameters {
			fmt.Fprintf(&sb, "\n  %s = %v", p.Name, p.Value)
			if p.Type != "" {
				fmt.Fprintf(&sb, " (%s)", p.Type)
			}
			if p.Immutable {
				sb.WriteString(" [immutable]")
			}
		}
	}
	return sb.String()
}
