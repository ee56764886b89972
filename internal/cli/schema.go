package cli

import (
	"github.com/spf13/cobra"

	"github.com/zoobzio/sqb/dql"
	"github.com/zoobzio/sqb/internal/plan"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "schema <plan.yaml>",
		Short:         "Print the DBML schema of a plan's entities",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, rootOpts, args[0])
		},
	}
}

// SchemaResult is the JSON payload of the schema command.
type SchemaResult struct {
	Tables []string `json:"tables"`
	DBML   string   `json:"dbml"`
}

func runSchema(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	formatter := newFormatter(cmd, rootOpts)

	p, err := plan.Load(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeLoad, err)
	}

	registry := dql.NewRegistry()
	for _, e := range p.Entities {
		if err := registry.Define(e.Name, e.Fields, e.Associations, e.Collections...); err != nil {
			_ = formatter.Error(ErrCodeSchema, err.Error(), nil)
			return WrapExitError(ExitFailure, ErrCodeSchema, err)
		}
	}
	project, err := registry.Schema()
	if err != nil {
		_ = formatter.Error(ErrCodeSchema, err.Error(), nil)
		return WrapExitError(ExitFailure, ErrCodeSchema, err)
	}

	formatter.VerboseLog("Generated %d tables", len(project.Tables))
	if rootOpts.Format == "json" {
		return formatter.Success(SchemaResult{Tables: tableNames(registry), DBML: project.Generate()})
	}
	return formatter.Success(project.Generate())
}

func tableNames(r *dql.Registry) []string {
	names := r.Names()
	out := make([]string, 0, len(names))
	for _, n := range names {
		if e, ok := r.Entity(n); ok {
			out = append(out, e.Table)
		}
	}
	return out
}
