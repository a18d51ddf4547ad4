// Package prompt collects submission data for a form interactively. Every
// input component becomes a terminal prompt; the answers are assembled into
// the nested data document the validator expects.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formio-validator/pkg/datapath"
	"github.com/goliatone/go-formio-validator/pkg/form"
)

// ErrAborted signals the user aborted input (e.g., Ctrl+C).
var ErrAborted = errors.New("prompt: aborted")

// Collect asks for a value for every input component of f, in document
// order. Calculated components and repeating groups are skipped: the first
// are filled in by the pipeline, the second need row editing the prompts do
// not offer.
func Collect(ctx context.Context, f *form.Form, driver Driver) (map[string]any, error) {
	if f == nil {
		return nil, errors.New("prompt: form is required")
	}
	if driver == nil {
		return nil, errors.New("prompt: driver is required")
	}

	data := make(map[string]any)
	var firstErr error
	form.Walk(f.Components, func(c *form.Component, path string, _ *form.Component) bool {
		if firstErr != nil {
			return false
		}
		switch c.Kind() {
		case form.KindArray:
			firstErr = driver.Info(ctx, fmt.Sprintf("Skipping %s: repeating groups are not prompted", c.DisplayLabel()))
			return false
		case form.KindLayout, form.KindContainer:
			return true
		case form.KindContent:
			return false
		}
		if !c.IsInput() || !c.CalculateValue.Empty() {
			return false
		}
		value, set, err := ask(ctx, driver, c)
		if err != nil {
			firstErr = fmt.Errorf("prompt: %s: %w", path, err)
			return false
		}
		if set {
			datapath.Set(data, path, value)
		}
		return false
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return data, nil
}

func ask(ctx context.Context, driver Driver, c *form.Component) (any, bool, error) {
	message := c.DisplayLabel()
	help := ""
	if c.Validate != nil && c.Validate.CustomMessage != "" {
		help = c.Validate.CustomMessage
	}
	required := c.IsRequired()

	switch strings.ToLower(c.Type) {
	case "checkbox":
		def, _ := c.DefaultValue.(bool)
		answer, err := driver.Confirm(ctx, ConfirmConfig{Message: message, Default: def, Help: help})
		return answer, err == nil, err

	case "select", "radio":
		options := c.Options()
		if len(options) == 0 {
			break
		}
		labels := optionLabels(options)
		if c.Multiple {
			picked, err := driver.MultiSelect(ctx, SelectConfig{Message: message, Options: labels, Help: help})
			if err != nil {
				return nil, false, err
			}
			values := make([]any, 0, len(picked))
			for _, idx := range picked {
				values = append(values, options[idx].Value)
			}
			return values, true, nil
		}
		idx, err := driver.Select(ctx, SelectConfig{
			Message:      message,
			Options:      labels,
			DefaultIndex: defaultIndex(options, c.DefaultValue),
			Help:         help,
		})
		if err != nil {
			return nil, false, err
		}
		if idx < 0 || idx >= len(options) {
			return nil, false, nil
		}
		return options[idx].Value, true, nil

	case "selectboxes":
		options := c.Options()
		picked, err := driver.MultiSelect(ctx, SelectConfig{Message: message, Options: optionLabels(options), Help: help})
		if err != nil {
			return nil, false, err
		}
		chosen := make(map[int]bool, len(picked))
		for _, idx := range picked {
			chosen[idx] = true
		}
		out := make(map[string]any, len(options))
		for idx, option := range options {
			out[fmt.Sprint(option.Value)] = chosen[idx]
		}
		return out, true, nil

	case "textarea":
		answer, err := driver.TextArea(ctx, TextAreaConfig{Message: message, Default: stringDefault(c.DefaultValue), Help: help})
		if err != nil {
			return nil, false, err
		}
		return answer, answer != "" || required, nil

	case "password":
		answer, err := driver.Password(ctx, InputConfig{Message: message, Help: help, Validator: requiredValidator(required)})
		if err != nil {
			return nil, false, err
		}
		return answer, answer != "", nil

	case "number", "currency":
		answer, err := driver.Input(ctx, InputConfig{
			Message:   message,
			Default:   stringDefault(c.DefaultValue),
			Help:      help,
			Validator: numberValidator(required),
		})
		if err != nil {
			return nil, false, err
		}
		if strings.TrimSpace(answer) == "" {
			return nil, false, nil
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
		if err != nil {
			return nil, false, err
		}
		return n, true, nil
	}

	answer, err := driver.Input(ctx, InputConfig{
		Message:   message,
		Default:   stringDefault(c.DefaultValue),
		Help:      help,
		Validator: requiredValidator(required),
	})
	if err != nil {
		return nil, false, err
	}
	return answer, answer != "", nil
}

func optionLabels(options []form.Option) []string {
	labels := make([]string, len(options))
	for i, option := range options {
		labels[i] = option.Label
		if labels[i] == "" {
			labels[i] = fmt.Sprint(option.Value)
		}
	}
	return labels
}

func defaultIndex(options []form.Option, def any) int {
	if def == nil {
		return -1
	}
	for i, option := range options {
		if fmt.Sprint(option.Value) == fmt.Sprint(def) {
			return i
		}
	}
	return -1
}

func stringDefault(def any) string {
	switch v := def.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func requiredValidator(required bool) func(string) error {
	if !required {
		return nil
	}
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("a value is required")
		}
		return nil
	}
}

func numberValidator(required bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if required {
				return errors.New("a value is required")
			}
			return nil
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return errors.New("enter a number")
		}
		return nil
	}
}
