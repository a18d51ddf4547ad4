package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	formvalidator "github.com/goliatone/go-formio-validator"
	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

// errValidationFailed makes the process exit non-zero after the result was
// printed.
var errValidationFailed = errors.New("submission is not valid")

var validateFlags struct {
	data      string
	token     string
	vmTimeout int64
	compact   bool
}

var validateCmd = &cobra.Command{
	Use:   "validate <form>",
	Short: "Validate a submission against a form",
	Long: `Validate a submission against a form and print the result as JSON.

The form argument is a file path (.json, .yaml or .yml), an http(s) URL or an
inline JSON document. The submission is read from --data, or from stdin when
--data is empty or "-". A submission may be the bare data object or an
envelope with a "data" member.

The command exits non-zero when the submission is not valid.

Examples:
  formvalidate validate forms/contact.json --data submission.json
  echo '{"data":{"email":"a@b.c"}}' | formvalidate validate forms/contact.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.data, "data", "d", "", "submission file (JSON or YAML), stdin when empty")
	validateCmd.Flags().StringVar(&validateFlags.token, "token", "", "x-jwt-token exposed to scripts")
	validateCmd.Flags().Int64Var(&validateFlags.vmTimeout, "vm-timeout", 0, "sandbox timeout in milliseconds")
	validateCmd.Flags().BoolVar(&validateFlags.compact, "compact", false, "print the result on one line")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ref, err := formsource.Parse(args[0])
	if err != nil {
		return err
	}
	data, meta, err := readSubmission(cmd.InOrStdin(), validateFlags.data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// an explicit URL argument is always fetched
	if ref.Kind() == formsource.KindURL {
		cfg.Forms.AllowHTTP = true
	}
	rt, err := newRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := rt.options(tokenBag(validateFlags.token))
	opts.SubmissionMeta = meta
	if validateFlags.vmTimeout > 0 {
		opts.VMTimeout = msDuration(validateFlags.vmTimeout)
	}

	result := rt.service.ValidateSubmission(contextOrBackground(cmd), ref, data, opts)
	return printResult(cmd.OutOrStdout(), result, validateFlags.compact)
}

// readSubmission reads a submission document. An object with a "data" member
// is an envelope: its other members become submission metadata.
func readSubmission(stdin io.Reader, path string) (map[string]any, map[string]any, error) {
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read submission: %w", err)
	}

	doc, err := decodeDocument(raw, path)
	if err != nil {
		return nil, nil, err
	}
	data, ok := doc["data"].(map[string]any)
	if !ok {
		return doc, nil, nil
	}
	meta := make(map[string]any, len(doc)-1)
	for key, value := range doc {
		if key != "data" {
			meta[key] = value
		}
	}
	return data, meta, nil
}

// decodeDocument decodes JSON, or YAML by extension. YAML is normalized
// through JSON so numbers are float64 like in JSON input.
func decodeDocument(raw []byte, path string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var value any
		if err := yaml.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("parse submission: %w", err)
		}
		normalized, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("parse submission: %w", err)
		}
		raw = normalized
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse submission: %w", err)
	}
	if doc == nil {
		return nil, errors.New("parse submission: expected a JSON object")
	}
	return doc, nil
}

func printResult(w io.Writer, result formvalidator.Result, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if !result.Success {
		return errValidationFailed
	}
	return nil
}

func tokenBag(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{processing.TokenHeader: token}
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
