package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/prompt"
)

var promptFlags struct {
	token   string
	compact bool
}

var promptCmd = &cobra.Command{
	Use:   "prompt <form>",
	Short: "Answer a form in the terminal and validate the answers",
	Long: `Ask for a value for every input component of the form, then validate the
collected submission and print the result as JSON.

Repeating groups and calculated components are not prompted.

Examples:
  formvalidate prompt forms/contact.json
  formvalidate prompt https://example.com/form/contact --token $JWT`,
	Args: cobra.ExactArgs(1),
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)

	promptCmd.Flags().StringVar(&promptFlags.token, "token", "", "x-jwt-token exposed to scripts")
	promptCmd.Flags().BoolVar(&promptFlags.compact, "compact", false, "print the result on one line")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ref, err := formsource.Parse(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ref.Kind() == formsource.KindURL {
		cfg.Forms.AllowHTTP = true
	}
	rt, err := newRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := contextOrBackground(cmd)
	// the cache keeps the form loaded here for the validation call below
	f, err := rt.cache.Load(ctx, ref)
	if err != nil {
		return err
	}

	data, err := prompt.Collect(ctx, f, prompt.NewSurveyDriver(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	result := rt.service.ValidateSubmission(ctx, ref, data, rt.options(tokenBag(promptFlags.token)))
	return printResult(cmd.OutOrStdout(), result, promptFlags.compact)
}
