package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/form"
)

type stubDriver struct {
	inputs       []string
	selectIdx    []int
	multiIdx     [][]int
	confirm      []bool
	textAreas    []string
	passwords    []string
	infoMessages []string
	messages     []string
	inputPos     int
	selectPos    int
	multiPos     int
	confirmPos   int
	textPos      int
	passPos      int
}

func (s *stubDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.inputPos >= len(s.inputs) {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[s.inputPos]
	s.inputPos++
	if cfg.Validator != nil {
		if err := cfg.Validator(val); err != nil {
			return "", err
		}
	}
	return val, nil
}

func (s *stubDriver) Password(_ context.Context, cfg InputConfig) (string, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.passPos >= len(s.passwords) {
		return "", errors.New("no password scripted")
	}
	val := s.passwords[s.passPos]
	s.passPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.selectPos >= len(s.selectIdx) {
		return -1, errors.New("no select scripted")
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) MultiSelect(_ context.Context, cfg SelectConfig) ([]int, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.multiPos >= len(s.multiIdx) {
		return nil, errors.New("no multiselect scripted")
	}
	val := s.multiIdx[s.multiPos]
	s.multiPos++
	return val, nil
}

func (s *stubDriver) TextArea(_ context.Context, cfg TextAreaConfig) (string, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.textPos >= len(s.textAreas) {
		return "", errors.New("no textarea scripted")
	}
	val := s.textAreas[s.textPos]
	s.textPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infoMessages = append(s.infoMessages, msg)
	return nil
}

const signupForm = `{"components": [
	{"type": "textfield", "key": "name", "label": "Name", "input": true, "validate": {"required": true}},
	{"type": "number", "key": "age", "label": "Age", "input": true},
	{"type": "checkbox", "key": "terms", "label": "Accept terms", "input": true},
	{"type": "panel", "key": "details", "components": [
		{"type": "select", "key": "plan", "label": "Plan", "input": true, "data": {"values": [
			{"label": "Free", "value": "free"}, {"label": "Pro", "value": "pro"}
		]}},
		{"type": "selectboxes", "key": "topics", "label": "Topics", "input": true, "values": [
			{"label": "Go", "value": "go"}, {"label": "Rust", "value": "rust"}
		]}
	]},
	{"type": "container", "key": "address", "input": true, "components": [
		{"type": "textarea", "key": "street", "label": "Street", "input": true}
	]},
	{"type": "password", "key": "secret", "label": "Secret", "input": true},
	{"type": "number", "key": "total", "label": "Total", "input": true, "calculateValue": "value = data.age * 2;"},
	{"type": "datagrid", "key": "items", "label": "Items", "input": true, "components": [
		{"type": "textfield", "key": "sku", "input": true}
	]}
]}`

func TestCollect(t *testing.T) {
	t.Parallel()

	f, err := form.Parse([]byte(signupForm))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	driver := &stubDriver{
		inputs:    []string{"Ada", "36"},
		confirm:   []bool{true},
		selectIdx: []int{1},
		multiIdx:  [][]int{{0}},
		textAreas: []string{"1 Main St"},
		passwords: []string{"hunter2"},
	}

	got, err := Collect(context.Background(), f, driver)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := map[string]any{
		"name":    "Ada",
		"age":     36.0,
		"terms":   true,
		"plan":    "pro",
		"topics":  map[string]any{"go": true, "rust": false},
		"address": map[string]any{"street": "1 Main St"},
		"secret":  "hunter2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Skipping Items: repeating groups are not prompted"}, driver.infoMessages); diff != "" {
		t.Fatalf("info mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectStopsOnDriverError(t *testing.T) {
	t.Parallel()

	f, err := form.Parse([]byte(signupForm))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	driver := &stubDriver{inputs: []string{""}}
	if _, err := Collect(context.Background(), f, driver); err == nil {
		t.Fatalf("expected required validator error")
	}
	if diff := cmp.Diff([]string{"Name"}, driver.messages); diff != "" {
		t.Fatalf("prompts mismatch (-want +got):\n%s", diff)
	}
}
