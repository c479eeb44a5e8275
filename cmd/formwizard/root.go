package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/internal/logging"
	"github.com/goliatone/go-formwizard/pkg/definition"
	"github.com/goliatone/go-formwizard/pkg/model"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "formwizard",
		Short:         "Run and inspect multi-step application wizards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./formwizard.yaml)")

	root.AddCommand(
		newRunCommand(a),
		newLintCommand(a),
		newListCommand(a),
		newInspectCommand(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// registry loads the embedded products plus any definitions found under the
// configured directory, applying threshold overrides to both.
func (a *app) registry() (*definition.Registry, error) {
	decorators := []model.Decorator{model.ThresholdOverrides(a.cfg.Definitions.Thresholds)}

	reg, err := definition.Defaults(decorators...)
	if err != nil {
		return nil, err
	}
	if dir := a.cfg.Definitions.Dir; dir != "" {
		if err := reg.LoadFS(os.DirFS(dir), decorators...); err != nil {
			return nil, fmt.Errorf("load definitions from %s: %w", dir, err)
		}
	}
	return reg, nil
}

func (a *app) definition(id string) (model.Definition, error) {
	reg, err := a.registry()
	if err != nil {
		return model.Definition{}, err
	}
	def, ok := reg.Get(id)
	if !ok {
		return model.Definition{}, fmt.Errorf("unknown definition %q (known: %v)", id, reg.IDs())
	}
	return def, nil
}
