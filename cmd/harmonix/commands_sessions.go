package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harmonix-run/harmonix/internal/observability"
	"github.com/harmonix-run/harmonix/internal/sessions"
	"github.com/harmonix-run/harmonix/pkg/models"
)

func sessionsPageRequest(limit int, token string) sessions.PageRequest {
	return sessions.PageRequest{Limit: limit, ContinuationToken: token}
}

func buildStartCmd(configPath *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "start <scriptId>",
		Short: "Start a new session bound to a registered script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, *configPath, args[0], sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id to use (generated if omitted)")
	return cmd
}

func runStart(cmd *cobra.Command, configPath, scriptID, sessionID string) error {
	e, err := buildEngine(configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := observability.AddScriptID(cmd.Context(), scriptID)
	session, err := e.Service.StartSession(ctx, scriptID, sessionID)
	if err != nil {
		e.Metrics.RecordError("service", "start_session_failed")
		return fmt.Errorf("start session: %w", err)
	}
	e.Metrics.SessionStarted()
	e.Logger.Info(ctx, "session started", "session_id", session.SessionID)
	return printJSON(cmd, session)
}

func buildExecuteCmd(configPath *string) *cobra.Command {
	var (
		index       int
		inputJSON   string
		executionID string
	)

	cmd := &cobra.Command{
		Use:   "execute <sessionId>",
		Short: "Execute the next message of a session, or an explicit index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, *configPath, args[0], index, inputJSON, executionID)
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "message index to execute (defaults to the session's current index)")
	cmd.Flags().StringVar(&inputJSON, "input", "", "JSON object of extract-input values for this step")
	cmd.Flags().StringVar(&executionID, "execution-id", "", "idempotency key for this execution")
	return cmd
}

func runExecute(cmd *cobra.Command, configPath, sessionID string, index int, inputJSON, executionID string) error {
	e, err := buildEngine(configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	input := models.NewCaseInsensitiveMap[any]()
	if inputJSON != "" {
		var plain map[string]any
		if err := json.Unmarshal([]byte(inputJSON), &plain); err != nil {
			return fmt.Errorf("parse --input: %w", err)
		}
		for k, v := range plain {
			input.Set(k, v)
		}
	}

	ctx := observability.AddSessionID(cmd.Context(), sessionID)
	ctx, span := e.Tracer.TraceMessageExecution(ctx, sessionID, index)
	defer span.End()

	start := time.Now()
	var resp *sessions.ExecuteResponse
	if index < 0 {
		resp, err = e.Service.ExecuteNext(ctx, sessionID, input, executionID)
	} else {
		resp, err = e.Service.ExecuteMessage(ctx, sessionID, index, input, executionID)
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		e.Tracer.RecordError(span, err)
		e.Metrics.RecordExecute("failed", elapsed)
		e.Logger.Error(ctx, "execute failed", "error", err)
		return fmt.Errorf("execute: %w", err)
	}
	e.Tracer.SetAttributes(span, "executed_index", resp.ExecutedIndex, "session_status", resp.SessionStatus)
	e.Metrics.RecordExecute(executeOutcome(resp), elapsed)
	recordOutputMetrics(e, resp)
	e.Logger.Info(ctx, "executed message",
		"executed_index", resp.ExecutedIndex,
		"next_index", resp.NextIndex,
		"session_status", resp.SessionStatus,
	)
	return printJSON(cmd, resp)
}

// recordOutputMetrics attributes per-output metrics from one execute call:
// a tool-trace artifact becomes a tool execution sample, a final-text
// artifact becomes a chat/assistant-turn sample. Durations aren't tracked
// per output by the interpreter, so these are recorded as zero-duration
// presence counts.
func recordOutputMetrics(e *engine, resp *sessions.ExecuteResponse) {
	for _, artifact := range resp.Outputs {
		switch {
		case artifact.ContentType == models.ArtifactToolTrace:
			e.Metrics.RecordToolExecution(artifact.Name, "success", 0)
		case artifact.Name == "final":
			e.Metrics.RecordChatRequest(e.Config.Chat.Provider, e.Config.Chat.Model, "success", 0)
		}
	}
}

// executeOutcome classifies a successful execute call for metrics: a
// session that reached a terminal status is "completed", one blocked by a
// missing tool collaborator is "blocked", anything else is "succeeded".
func executeOutcome(resp *sessions.ExecuteResponse) string {
	switch resp.SessionStatus {
	case string(models.StatusCompleted), string(models.StatusFailed), string(models.StatusBlocked):
		return resp.SessionStatus
	default:
		return "succeeded"
	}
}

func buildStatusCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <sessionId>",
		Short: "Show a session's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()
			resp, err := e.Service.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			return printJSON(cmd, resp)
		},
	}
	return cmd
}

func buildHistoryCmd(configPath *string) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "history <sessionId>",
		Short: "Show a session's execution history",
		Long:  "Show a session's full execution history, or a single record with --index.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if cmd.Flags().Changed("index") {
				resp, err := e.Service.GetHistoryItem(ctx, args[0], index)
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
				return printJSON(cmd, resp)
			}
			resp, err := e.Service.GetHistory(ctx, args[0])
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "show only the record at this message index")
	return cmd
}

func buildListCmd(configPath *string) *cobra.Command {
	var (
		scriptID string
		limit    int
		token    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List session ids, optionally filtered by script",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			if limit <= 0 {
				limit = e.Config.Session.DefaultPageSize
			}
			resp, err := e.Service.ListSessions(cmd.Context(), scriptID, sessionsPageRequest(limit, token))
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&scriptID, "script-id", "", "restrict to sessions started from this script")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (defaults to the configured session.default_page_size)")
	cmd.Flags().StringVar(&token, "token", "", "continuation token from a prior page")
	return cmd
}

func buildDeleteCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <sessionId>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.Service.DeleteSession(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
