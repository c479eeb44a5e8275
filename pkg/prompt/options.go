package prompt

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// Theme captures optional prefixes the runner applies when printing
// messages.
type Theme struct {
	InfoPrefix  string
	ErrorPrefix string
}

// Saver persists snapshots between prompts. store.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, session wizard.Session) error
}

// Option configures the Runner.
type Option func(*Runner)

// WithPromptDriver overrides the prompt driver used by the runner.
func WithPromptDriver(driver PromptDriver) Option {
	return func(r *Runner) {
		if driver != nil {
			r.driver = driver
		}
	}
}

// WithTheme applies optional message prefixes.
func WithTheme(theme Theme) Option {
	return func(r *Runner) {
		r.theme = theme
	}
}

// WithSaver checkpoints the session after every interaction.
func WithSaver(saver Saver) Option {
	return func(r *Runner) {
		r.saver = saver
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}
