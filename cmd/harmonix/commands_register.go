package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harmonix-run/harmonix/internal/observability"
)

func buildRegisterCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <scriptId> <file>",
		Short: "Parse and validate a script, then register it for execution",
		Long: `Register a script under scriptId.

The file may hold back-to-back harmony wire-format frames
(<|start|>...<|message|>...<|end|>) or a single canonical-shape JSON
envelope. The extension decides which: ".json" parses as JSON, anything
else as wire-format text.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, *configPath, args[0], args[1])
		},
	}
	return cmd
}

func runRegister(cmd *cobra.Command, configPath, scriptID, file string) error {
	e, err := buildEngine(configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	ctx := observability.AddScriptID(cmd.Context(), scriptID)
	var env any
	if strings.EqualFold(filepath.Ext(file), ".json") {
		env, err = e.Loader.LoadJSON(ctx, scriptID, raw)
	} else {
		env, err = e.Loader.LoadWire(ctx, scriptID, string(raw))
	}
	if err != nil {
		return fmt.Errorf("register %s: %w", scriptID, err)
	}

	e.Metrics.ScriptRegistered()
	e.Logger.Info(ctx, "script registered", "file", file)

	out := cmd.OutOrStdout()
	encoded, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "registered %s\n%s\n", scriptID, encoded)
	return nil
}
