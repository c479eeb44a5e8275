package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// InputConfig describes a free-text question. Secret masks the echo and is
// used for passcodes.
type InputConfig struct {
	Message   string
	Default   string
	Help      string
	Secret    bool
	Validator func(string) error
}

// ConfirmConfig describes a yes/no question, used for checkbox fields.
type ConfirmConfig struct {
	Message string
	Default bool
	Help    string
}

// SelectConfig describes a single choice among enum options or menu
// actions. DefaultIndex is ignored when out of range.
type SelectConfig struct {
	Message      string
	Options      []string
	DefaultIndex int
	Help         string
	PageSize     int
}

// PromptDriver is the terminal seam the Runner talks to. Tests replace it
// with a scripted driver.
type PromptDriver interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error)
	Select(ctx context.Context, cfg SelectConfig) (int, error)
	Info(ctx context.Context, msg string) error
}

// Stdio is the terminal the survey driver uses. Zero fields fall back to the
// process streams. Survey needs file descriptors, so readers and writers
// that are not files are only used for Info output.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type surveyDriver struct {
	in   terminal.FileReader
	out  terminal.FileWriter
	err  io.Writer
	info io.Writer
}

// NewSurveyDriver returns the interactive driver backed by survey.
func NewSurveyDriver(stdio Stdio) PromptDriver {
	d := &surveyDriver{in: os.Stdin, out: os.Stdout, err: os.Stderr, info: os.Stdout}
	if in, ok := stdio.In.(terminal.FileReader); ok {
		d.in = in
	}
	if stdio.Out != nil {
		d.info = stdio.Out
		if out, ok := stdio.Out.(terminal.FileWriter); ok {
			d.out = out
		}
	}
	if stdio.Err != nil {
		d.err = stdio.Err
	}
	return d
}

func (d *surveyDriver) Input(ctx context.Context, cfg InputConfig) (string, error) {
	var prompt survey.Prompt = &survey.Input{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}
	if cfg.Secret {
		prompt = &survey.Password{Message: cfg.Message, Help: cfg.Help}
	}
	var answer string
	if err := d.ask(ctx, prompt, &answer, cfg.Validator); err != nil {
		return "", err
	}
	return answer, nil
}

func (d *surveyDriver) Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error) {
	var answer bool
	prompt := &survey.Confirm{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}
	if err := d.ask(ctx, prompt, &answer, nil); err != nil {
		return false, err
	}
	return answer, nil
}

func (d *surveyDriver) Select(ctx context.Context, cfg SelectConfig) (int, error) {
	if len(cfg.Options) == 0 {
		return 0, fmt.Errorf("prompt: %q has no options", cfg.Message)
	}
	prompt := &survey.Select{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help}
	if cfg.PageSize > 0 {
		prompt.PageSize = cfg.PageSize
	}
	if cfg.DefaultIndex >= 0 && cfg.DefaultIndex < len(cfg.Options) {
		prompt.Default = cfg.Options[cfg.DefaultIndex]
	}
	// survey writes the chosen index when the target is an int.
	var answer int
	if err := d.ask(ctx, prompt, &answer, nil); err != nil {
		return 0, err
	}
	return answer, nil
}

func (d *surveyDriver) Info(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.info, msg)
	return err
}

// ask runs one survey question on the driver's terminal. A context that ended
// while the user was typing wins over the answer.
func (d *surveyDriver) ask(ctx context.Context, prompt survey.Prompt, answer any, validate func(string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := []survey.AskOpt{survey.WithStdio(d.in, d.out, d.err)}
	if validate != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			return validate(s)
		}))
	}
	if err := survey.AskOne(prompt, answer, opts...); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return ErrAborted
		}
		return err
	}
	return ctx.Err()
}

func indexOf(options []string, value string) int {
	for i, option := range options {
		if option == value {
			return i
		}
	}
	return -1
}
