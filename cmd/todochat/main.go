package main

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/mark3labs/todochat/internal/logger"
)

const (
	logoText1 = "▀█▀ █▀█ █▀▄ █▀█ █▀▀ █▄█ ▄▀█ ▀█▀"
	logoText2 = " █  █▄█ █▄▀ █▄█ █▄▄ █ █ █▀█  █ "
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "todochat",
	Short: "Terminal chat client for the Todo app's AI agent",
}

func init() {
	rootCmd.Long = strings.Join([]string{logoText1, logoText2}, "\n") + `

todochat is a terminal client for the Todo app's AI chat. It streams agent
replies over SSE with automatic reconnection, renders tool activity live in
a Bubbletea TUI, and keeps conversation transcripts in embedded NATS
JetStream.`

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
}
