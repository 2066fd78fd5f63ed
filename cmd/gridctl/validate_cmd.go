package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gnemet/tablegrid"
	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"
)

var errInvalid = errors.New("one or more definitions are invalid")

func newValidateCmd() *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "validate <definition> [definition...]",
		Short: "Check definition files against the schema and for consistency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var schemaLoader gojsonschema.JSONLoader
			if schemaPath != "" {
				abs, err := filepath.Abs(schemaPath)
				if err != nil {
					return fmt.Errorf("invalid schema path: %w", err)
				}
				schemaLoader = gojsonschema.NewReferenceLoader("file://" + abs)
			}

			allValid := true
			for _, path := range args {
				name := filepath.Base(path)
				if schemaLoader != nil && filepath.Ext(path) == ".json" {
					abs, err := filepath.Abs(path)
					if err != nil {
						fmt.Fprintf(out, "❌ Invalid definition path: %s\n", path)
						allValid = false
						continue
					}
					result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewReferenceLoader("file://"+abs))
					if err != nil {
						fmt.Fprintf(out, "❌ Error validating %s: %v\n", name, err)
						allValid = false
						continue
					}
					if !result.Valid() {
						fmt.Fprintf(out, "❌ %s is invalid!\n", name)
						for _, desc := range result.Errors() {
							fmt.Fprintf(out, "   - %s\n", desc)
						}
						allValid = false
						continue
					}
				}

				def, err := tablegrid.LoadDefinition(path)
				if err != nil {
					fmt.Fprintf(out, "❌ %s is invalid!\n   - %v\n", name, err)
					allValid = false
					continue
				}
				fmt.Fprintf(out, "✅ %s is valid (%s, %d columns, %d records).\n", name, def.Name, len(def.Columns), len(def.Seed))
			}

			if !allValid {
				return errInvalid
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "Additional JSON Schema to check .json definitions against")
	return cmd
}
