package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formio-validator/pkg/logging"
)

func TestEmitSkipsMissingSlots(t *testing.T) {
	t.Parallel()

	var got []string
	logger := logging.Logger{
		Info: func(msg string, _ map[string]any) { got = append(got, msg) },
	}
	logger.Emit(logging.LevelDebug, "dropped", nil)
	logger.Emit(logging.LevelInfo, "kept", nil)
	logging.Nop().Emit(logging.LevelError, "nothing", nil)

	if diff := cmp.Diff([]string{"kept"}, got); diff != "" {
		t.Fatalf("emitted mismatch (-want +got):\n%s", diff)
	}
}

func TestModuleBindsField(t *testing.T) {
	t.Parallel()

	var fields map[string]any
	logger := logging.Logger{
		Warn: func(_ string, f map[string]any) { fields = f },
	}.Module("Validator")

	logger.Emit(logging.LevelWarn, "careful", map[string]any{"path": "name"})

	want := map[string]any{"module": "Validator", "path": "name"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestFromSlogWritesJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base, err := logging.New(logging.Config{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.FromSlog(base).Emit(logging.LevelDebug, "Starting validation", map[string]any{"module": "Validator"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", buf.String(), err)
	}
	if entry["msg"] != "Starting validation" || entry["module"] != "Validator" || entry["level"] != "DEBUG" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := logging.New(logging.Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
