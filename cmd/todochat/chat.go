package main

import (
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/mark3labs/todochat/internal/api"
	"github.com/mark3labs/todochat/internal/auth"
	"github.com/mark3labs/todochat/internal/chat"
	"github.com/mark3labs/todochat/internal/config"
	"github.com/mark3labs/todochat/internal/history"
	"github.com/mark3labs/todochat/internal/logger"
	"github.com/mark3labs/todochat/internal/stream"
	"github.com/mark3labs/todochat/internal/tui"
)

var chatFlags struct {
	conversation string
	noHistory    bool
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat TUI",
	Long: `Open the chat TUI and talk to the Todo agent.

Replies stream in live, tool calls show their lifecycle as they run, and
the task sidebar (ctrl+t) tracks the list the agent is editing. The
transcript is appended to the local history store under the conversation
name.

Configuration is loaded with the following precedence:
  Environment variables > Project config > Global config > Defaults

Project config: ./todochat.yml
Global config: ~/.config/todochat/todochat.yml`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatFlags.conversation, "conversation", "c", "default", "Conversation name for the transcript log")
	chatCmd.Flags().BoolVar(&chatFlags.noHistory, "no-history", false, "Skip the local transcript store")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}

	sess := auth.LoadSession(cfg.SessionPath())
	if !sess.Valid() {
		return fmt.Errorf("not logged in\n\nRun 'todochat login' first")
	}

	var store *history.Store
	if !chatFlags.noHistory {
		store, err = history.Open(cmd.Context(), cfg.HistoryDir())
		if err != nil {
			// Chat still works without the transcript store.
			logger.Warn("History store unavailable: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	tui.EnableMarkdown(cfg.Markdown)

	client := stream.NewClient(cfg.APIBase, cfg.StreamConfig())
	tasks := api.NewClient(cfg.APIBase, sess.Token)

	// The notify hook fires on the stream goroutine; Program.Send is the
	// thread-safe way into the Bubbletea event loop.
	var program *tea.Program
	session := chat.NewSession(chat.SessionOptions{
		Client: client,
		Token:  sess.Token,
		Label:  chatFlags.conversation,
		Store:  store,
		Notify: func(u chat.Update) {
			program.Send(tui.TurnUpdateMsg{Update: u})
		},
	})

	ctx := cmd.Context()
	app := tui.NewApp(tui.AppOptions{
		Send: func(message string) {
			session.Send(ctx, message)
		},
		Cancel:       session.Cancel,
		Tasks:        tasks,
		Conversation: chatFlags.conversation,
	})

	program = tea.NewProgram(app)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	// Stop any in-flight turn so the transcript store closes cleanly.
	session.Cancel()
	session.Wait()

	return nil
}
