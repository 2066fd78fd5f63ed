package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gnemet/tablegrid"
	"github.com/gnemet/tablegrid/internal/pages"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gridctl",
		Short:         "Validate grid definitions and export page data",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newValidateCmd(), newExportCmd(), newSchemaCmd(), newPagesCmd())
	return cmd
}

// resolveDefinition treats arg as a definition file when it exists on disk and
// as a built-in page name otherwise.
func resolveDefinition(arg string) (*tablegrid.Definition, error) {
	if _, err := os.Stat(arg); err == nil {
		return tablegrid.LoadDefinition(arg)
	}
	catalog, err := pages.Embedded()
	if err != nil {
		return nil, err
	}
	def, ok := catalog.Get(arg)
	if !ok {
		return nil, fmt.Errorf("no definition file or page named %q (pages: %s)", arg, strings.Join(catalog.Names(), ", "))
	}
	return def, nil
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema definitions are validated against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(tablegrid.DefinitionSchema())
			return err
		},
	}
}

func newPagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List the built-in pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := pages.Embedded()
			if err != nil {
				return err
			}
			for _, p := range catalog.Pages() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-26s %-26s %d records\n", p.Name, p.Title, p.Records)
			}
			return nil
		},
	}
}
