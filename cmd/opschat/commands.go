// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file defines the opschat command tree.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plantops-ai/opschat/cmd/opschat/config"
	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/storage/kv"
	"github.com/plantops-ai/opschat/pkg/stream"
	"github.com/plantops-ai/opschat/pkg/ux"
)

// appVersion is stamped at build time.
var appVersion = "dev"

// runtime bundles everything a command needs.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *kv.DB
	client   QAClient
	traces   *stream.TraceStore
	fallback *FallbackState
	sessions *SessionStore
}

// newRuntime loads configuration and opens the shared dependencies. The
// local database is optional: if it cannot be opened the client still works,
// minus session bookkeeping and fallback persistence.
func newRuntime() (*runtime, error) {
	cfg, err := config.Global()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.Level(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "opschat",
		Quiet:   true,
	})
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		client: NewQAClient(cfg, logger),
		traces: stream.NewTraceStore(),
	}

	dataDir, err := config.ExpandPath(cfg.Storage.DataDir)
	if err == nil {
		kvCfg := kv.DefaultConfig(dataDir)
		kvCfg.Logger = logger.Slog()
		rt.db, err = kv.Open(kvCfg)
	}
	if err != nil {
		logger.Warn("local database unavailable", "error", err)
	}
	if rt.db != nil {
		rt.sessions = NewSessionStore(rt.db, logger)
	}
	rt.fallback = NewFallbackState(rt.db, cfg.FallbackTTL(), logger)

	return rt, nil
}

func (rt *runtime) close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
	_ = rt.logger.Close()
}

func (rt *runtime) orchestrator(chatUI ux.ChatUI) *ChatOrchestrator {
	return NewChatOrchestrator(rt.client, chatUI, rt.traces, rt.fallback, rt.sessions, rt.cfg, rt.logger)
}

// =============================================================================
// Command Tree
// =============================================================================

func newRootCmd() *cobra.Command {
	var personality string

	root := &cobra.Command{
		Use:           "opschat",
		Short:         "Terminal client for the PlantOps operations assistant",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			ux.InitPersonality()
			if personality != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personality))
			}
		},
	}
	root.PersistentFlags().StringVarP(&personality, "personality", "p", "",
		"output personality: full, standard, minimal, machine")

	root.AddCommand(newChatCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newSessionsCmd())
	return root
}

func newChatCmd() *cobra.Command {
	var (
		resumeSession string
		noStream      bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()
			if noStream {
				rt.cfg.Stream.Enabled = false
			}

			chatUI := ux.NewChatUI()
			orc := rt.orchestrator(chatUI)
			if resumeSession != "" {
				orc.ResumeSession(resumeSession)
			}

			runner := NewChatRunner(orc, chatUI, NewInteractiveInputReader(), rt.logger)
			return runner.Run(cmd.Context(), appVersion, rt.cfg.Server.BaseURL)
		},
	}
	cmd.Flags().StringVar(&resumeSession, "session", "", "resume an existing session id")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "disable the thinking stream for this session")
	return cmd
}

func newAskCmd() *cobra.Command {
	var noStream bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()
			if noStream {
				rt.cfg.Stream.Enabled = false
			}

			chatUI := ux.NewChatUI()
			orc := rt.orchestrator(chatUI)

			return orc.SendMessage(cmd.Context(), strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "disable the thinking stream")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage locally known sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsInfoCmd())
	cmd.AddCommand(newSessionsRefreshCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		RunE: func(*cobra.Command, []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()
			if rt.sessions == nil {
				return errors.New("local database unavailable")
			}

			sessions, err := rt.sessions.List()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%s  %3d msgs  %s  %s\n",
					s.LastAccessed.Format("2006-01-02 15:04"),
					s.MessageCount, s.SessionID, s.Title)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	var keepRemote bool

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session locally and on the orchestrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()
			sessionID := args[0]

			if !keepRemote {
				if err := rt.client.DeleteContext(cmd.Context(), sessionID); err != nil {
					rt.logger.Warn("remote delete failed", "session_id", sessionID, "error", err)
				}
			}
			if rt.sessions != nil {
				if err := rt.sessions.Delete(sessionID); err != nil {
					return err
				}
			}
			fmt.Printf("Deleted session %s\n", sessionID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepRemote, "keep-remote", false, "only remove the local record")
	return cmd
}

func newSessionsInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <session-id>",
		Short: "Show orchestrator-side context info for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			info, err := rt.client.ContextInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("session: %s\nmessages: %d\n", info.SessionID, info.MessageCount)
			if info.CreatedAt != "" {
				fmt.Printf("created: %s\n", info.CreatedAt)
			}
			return nil
		},
	}
}

func newSessionsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <session-id>",
		Short: "Reset the TTL of an orchestrator-side session context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.client.RefreshContext(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Refreshed session %s\n", args[0])
			return nil
		},
	}
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
