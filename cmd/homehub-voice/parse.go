package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/homehub-voice/internal/app"
)

var parseCmd = &cobra.Command{
	Use:   "parse <text...>",
	Short: "Show how a transcription would be interpreted",
	Long: `Parse runs the wake word check and command table on the given text and
prints the result. Nothing is dispatched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	interpreter, err := app.NewInterpreter(cfg)
	if err != nil {
		return err
	}

	in := interpreter.Interpret(strings.Join(args, " "))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "normalized: %s\n", in.Normalized)
	fmt.Fprintf(out, "wake:       %t\n", in.Wake)
	if in.Fuzzy {
		fmt.Fprintln(out, "fuzzy:      true")
	}
	if in.Wake {
		fmt.Fprintf(out, "remainder:  %s\n", in.Remainder)
		fmt.Fprintf(out, "command:    %s\n", in.Command)
	}
	return nil
}
