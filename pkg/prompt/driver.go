package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// InputConfig configures a basic text input prompt.
type InputConfig struct {
	Message   string
	Default   string
	Help      string
	Validator func(string) error
}

// ConfirmConfig configures a yes/no prompt.
type ConfirmConfig struct {
	Message string
	Default bool
	Help    string
}

// SelectConfig configures a single or multi-select prompt.
type SelectConfig struct {
	Message      string
	Options      []string
	DefaultIndex int
	Defaults     []int // multi-select; indices into Options
	Help         string
	PageSize     int
}

// TextAreaConfig configures a multi-line text prompt.
type TextAreaConfig struct {
	Message string
	Default string
	Help    string
}

// Driver abstracts the terminal so collection can be tested without one.
type Driver interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	Password(ctx context.Context, cfg InputConfig) (string, error)
	Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error)
	Select(ctx context.Context, cfg SelectConfig) (int, error)
	MultiSelect(ctx context.Context, cfg SelectConfig) ([]int, error)
	TextArea(ctx context.Context, cfg TextAreaConfig) (string, error)
	Info(ctx context.Context, msg string) error
}

// SurveyOption configures the survey backed driver.
type SurveyOption func(*surveyDriver)

// WithStdio runs prompts on the given terminal streams instead of the
// process stdio.
func WithStdio(in terminal.FileReader, out terminal.FileWriter, errOut io.Writer) SurveyOption {
	return func(d *surveyDriver) {
		d.opts = append(d.opts, survey.WithStdio(in, out, errOut))
	}
}

// WithPageSize caps how many options a select prompt shows at once.
func WithPageSize(size int) SurveyOption {
	return func(d *surveyDriver) {
		if size > 0 {
			d.opts = append(d.opts, survey.WithPageSize(size))
		}
	}
}

type surveyDriver struct {
	info io.Writer
	opts []survey.AskOpt
}

// NewSurveyDriver returns a Driver backed by survey on the process terminal.
// Info messages go to info, or stdout when nil.
func NewSurveyDriver(info io.Writer, options ...SurveyOption) Driver {
	if info == nil {
		info = os.Stdout
	}
	d := &surveyDriver{info: info}
	for _, opt := range options {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// askOne runs p and decodes the answer into a T. Ctrl+C maps to ErrAborted.
func askOne[T any](ctx context.Context, d *surveyDriver, p survey.Prompt, check func(string) error) (T, error) {
	var answer T
	if err := ctx.Err(); err != nil {
		return answer, err
	}
	opts := d.opts
	if check != nil {
		opts = append(append([]survey.AskOpt(nil), opts...), survey.WithValidator(func(raw any) error {
			text, _ := raw.(string)
			return check(text)
		}))
	}
	err := survey.AskOne(p, &answer, opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return answer, ErrAborted
	}
	return answer, err
}

func (d *surveyDriver) Input(ctx context.Context, cfg InputConfig) (string, error) {
	return askOne[string](ctx, d, &survey.Input{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}, cfg.Validator)
}

func (d *surveyDriver) Password(ctx context.Context, cfg InputConfig) (string, error) {
	return askOne[string](ctx, d, &survey.Password{Message: cfg.Message, Help: cfg.Help}, cfg.Validator)
}

func (d *surveyDriver) Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error) {
	return askOne[bool](ctx, d, &survey.Confirm{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}, nil)
}

func (d *surveyDriver) TextArea(ctx context.Context, cfg TextAreaConfig) (string, error) {
	return askOne[string](ctx, d, &survey.Multiline{Message: cfg.Message, Help: cfg.Help, Default: cfg.Default}, nil)
}

// Select answers with the index of the picked option. survey reports the
// index directly when the answer is an int.
func (d *surveyDriver) Select(ctx context.Context, cfg SelectConfig) (int, error) {
	p := &survey.Select{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help, PageSize: cfg.PageSize}
	if cfg.DefaultIndex >= 0 && cfg.DefaultIndex < len(cfg.Options) {
		p.Default = cfg.DefaultIndex
	}
	return askOne[int](ctx, d, p, nil)
}

// MultiSelect answers with the indexes of the picked options, in option
// order.
func (d *surveyDriver) MultiSelect(ctx context.Context, cfg SelectConfig) ([]int, error) {
	p := &survey.MultiSelect{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help, PageSize: cfg.PageSize}
	if len(cfg.Defaults) > 0 {
		defaults := make([]int, 0, len(cfg.Defaults))
		for _, idx := range cfg.Defaults {
			if idx >= 0 && idx < len(cfg.Options) {
				defaults = append(defaults, idx)
			}
		}
		p.Default = defaults
	}
	picked, err := askOne[[]int](ctx, d, p, nil)
	if err != nil {
		return nil, err
	}
	sort.Ints(picked)
	return picked, nil
}

func (d *surveyDriver) Info(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.info, msg)
	return err
}
