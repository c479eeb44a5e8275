package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formwizard/pkg/definition"
	"github.com/goliatone/go-formwizard/pkg/model"
)

func newInspectCommand(a *app) *cobra.Command {
	var (
		asJSON      bool
		openAPIPath string
		operationID string
	)

	cmd := &cobra.Command{
		Use:   "inspect [definition]",
		Short: "Print a normalised definition",
		Long: `Print a definition after defaults and thresholds are resolved. With
--openapi the definition is derived from an operation's request body instead,
which is a quick way to turn an API description into a definition file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				def model.Definition
				err error
			)
			switch {
			case openAPIPath != "":
				if operationID == "" {
					return errors.New("--operation is required with --openapi")
				}
				data, readErr := os.ReadFile(openAPIPath)
				if readErr != nil {
					return readErr
				}
				def, err = definition.FromOpenAPI(cmd.Context(), data, operationID)
			case len(args) == 1:
				def, err = a.definition(args[0])
			default:
				return errors.New("a definition id or --openapi is required")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(def)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(def); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")
	cmd.Flags().StringVar(&openAPIPath, "openapi", "", "derive the definition from this OpenAPI document")
	cmd.Flags().StringVar(&operationID, "operation", "", "operationId used with --openapi")
	return cmd
}
