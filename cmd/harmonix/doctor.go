package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harmonix-run/harmonix/internal/config"
	"github.com/harmonix-run/harmonix/internal/sessions"
)

// buildDoctorCmd checks what harmonix needs at runtime: the config loads
// and validates, the configured store backend is reachable, and the
// configured chat provider has credentials.
func buildDoctorCmd(configPath *string) *cobra.Command {
	var showSchema bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and collaborator readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showSchema {
				raw, err := config.JSONSchema()
				if err != nil {
					return fmt.Errorf("generate config schema: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			return runDoctor(cmd, *configPath)
		},
	}
	cmd.Flags().BoolVar(&showSchema, "schema", false, "print the config file JSON schema and exit")
	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	path := resolveConfigPath(configPath)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "config: FAIL (%s): %v\n", path, err)
		return err
	}
	fmt.Fprintf(out, "config: OK (%s)\n%s\n", path, cfg)

	if cfg.Store.Backend == "sqlite" {
		store, err := sessions.NewSQLStore(sessions.SQLStoreConfig{Path: cfg.Store.Path})
		if err != nil {
			fmt.Fprintf(out, "store: FAIL (sqlite %s): %v\n", cfg.Store.Path, err)
			return err
		}
		store.Close()
	}
	fmt.Fprintf(out, "store: OK (%s)\n", cfg.Store.Backend)

	fmt.Fprintf(out, "chat: configured (%s/%s)\n", cfg.Chat.Provider, cfg.Chat.Model)
	if cfg.Chat.APIKey == "" {
		fmt.Fprintln(out, "chat: WARN: no api key configured; requests will fail")
	}
	return nil
}
