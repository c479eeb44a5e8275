package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/pkg/backend"
	"github.com/goliatone/go-formwizard/pkg/otp"
	"github.com/goliatone/go-formwizard/pkg/prompt"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/submission"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		local    bool
		resumeID string
	)

	cmd := &cobra.Command{
		Use:   "run <definition>",
		Short: "Fill in a wizard interactively",
		Long: `Walk through a wizard definition in the terminal, submit it and verify
the contact with a one-time passcode.

Examples:
  # Against the configured backend
  formwizard run personal-loan

  # Fully offline: submissions are accepted locally and codes are printed
  formwizard run credit-card --local

  # Continue a saved draft
  formwizard run kyc --resume 5b0c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), args[0], resumeID, local)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "accept submissions locally and print passcodes instead of calling the backend")
	cmd.Flags().StringVar(&resumeID, "resume", "", "resume the saved draft with this session id")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, defID, resumeID string, local bool) error {
	def, err := a.definition(defID)
	if err != nil {
		return err
	}

	drafts, closeStore, err := openStore(a.cfg.Store, a.logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var session wizard.Session
	if resumeID != "" {
		session, err = drafts.Load(ctx, resumeID)
		if err != nil {
			return fmt.Errorf("resume %s: %w", resumeID, err)
		}
	} else {
		now := time.Now()
		session = wizard.Session{
			ID:           uuid.NewString(),
			DefinitionID: def.ID,
			Status:       wizard.StatusDraft,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	logger := a.logger.With(zap.String("session_id", session.ID))

	var (
		transport submission.Transport
		codes     otp.Backend
	)
	if local {
		transport = localTransport(logger)
		codes = otp.NewMemoryBackend(printSender(out), otp.WithMemoryWindow(a.cfg.OTP.Window))
	} else {
		client, err := backend.New(a.cfg.Backend.URL,
			backend.WithTimeout(a.cfg.Backend.Timeout),
			backend.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		client = client.ForSession(session.ID)
		transport, codes = client, client
	}

	submitter := submission.NewClient(transport,
		submission.WithMaxTries(a.cfg.Submission.MaxTries),
		submission.WithBackOff(retryBackOff(a.cfg.Submission)),
		submission.WithLogger(logger),
	)
	var challenger wizard.Challenger
	if def.OTP.ContactField != "" {
		challenger = otp.NewFlow(codes,
			otp.WithPolicy(otp.Policy{
				Window:         a.cfg.OTP.Window,
				MaxAttempts:    a.cfg.OTP.MaxAttempts,
				MaxResends:     a.cfg.OTP.MaxResends,
				ResendCooldown: a.cfg.OTP.ResendCooldown,
			}),
			otp.WithLogger(logger),
		)
	}

	ctrl, err := wizard.New(def, submitter, challenger,
		wizard.WithSession(session),
		wizard.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	runner, err := prompt.NewRunner(ctrl,
		prompt.WithPromptDriver(prompt.NewSurveyDriver(prompt.Stdio{Out: out})),
		prompt.WithSaver(drafts),
		prompt.WithLogger(logger),
		prompt.WithTheme(prompt.Theme{ErrorPrefix: "! "}),
	)
	if err != nil {
		return err
	}

	final, err := runner.Run(ctx)
	switch {
	case errors.Is(err, prompt.ErrSuspended), errors.Is(err, prompt.ErrAborted):
		fmt.Fprintf(out, "Draft saved. Resume with: formwizard run %s --resume %s\n", def.ID, final.ID)
		if a.cfg.Store.Driver == config.StoreMemory {
			fmt.Fprintln(out, "Note: the memory store does not outlive this process; set store.driver=redis to keep drafts.")
		}
		return nil
	case err != nil:
		return err
	}
	if final.Status == wizard.StatusVerified {
		if err := drafts.Delete(ctx, final.ID); err != nil {
			logger.Warn("failed to delete finished draft", zap.Error(err))
		}
	}
	return nil
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Driver != config.StoreRedis {
		return store.NewMemory(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	drafts, err := store.NewRedis(client, store.WithTTL(cfg.TTL), store.WithLogger(logger))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return drafts, func() { _ = client.Close() }, nil
}

func retryBackOff(cfg config.SubmissionConfig) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		if cfg.InitialBackoff > 0 {
			b.InitialInterval = cfg.InitialBackoff
		}
		if cfg.MaxBackoff > 0 {
			b.MaxInterval = cfg.MaxBackoff
		}
		return b
	}
}

// localTransport accepts every submission with a generated reference.
func localTransport(logger *zap.Logger) submission.Transport {
	return submission.TransportFunc(func(ctx context.Context, req submission.Request) (submission.Response, error) {
		if err := ctx.Err(); err != nil {
			return submission.Response{}, err
		}
		ref := "LOCAL-" + strings.ToUpper(uuid.NewString()[:8])
		logger.Info("accepted submission locally",
			zap.String("kind", req.Kind),
			zap.String("reference_id", ref),
			zap.Int("fields", len(req.Payload)),
		)
		return submission.Response{Success: true, ReferenceID: ref}, nil
	})
}

func printSender(out io.Writer) otp.Sender {
	return func(_ context.Context, contact, code string) error {
		_, err := fmt.Fprintf(out, "[local] passcode for %s: %s\n", contact, code)
		return err
	}
}
