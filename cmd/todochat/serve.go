package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mark3labs/todochat/internal/devserver"
	"github.com/mark3labs/todochat/internal/logger"
)

var serveFlags struct {
	addr       string
	tokenDelay time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local development Todo server",
	Long: `Run a local development Todo server with an in-memory task store and
a scripted chat agent.

Any email and password is accepted at sign-in. Point the client at it with:

  TODOCHAT_API_BASE=http://localhost:8484 todochat chat`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.addr, "addr", "a", ":8484", "Listen address")
	serveCmd.Flags().DurationVar(&serveFlags.tokenDelay, "token-delay", 30*time.Millisecond, "Delay between streamed tokens")
}

func runServe(cmd *cobra.Command, args []string) error {
	srv := devserver.New()
	srv.TokenDelay = serveFlags.tokenDelay

	logger.Info("Dev server listening on %s", serveFlags.addr)
	fmt.Printf("todochat dev server listening on %s\n", serveFlags.addr)

	if err := http.ListenAndServe(serveFlags.addr, srv.Handler()); err != nil {
		return fmt.Errorf("dev server: %w", err)
	}
	return nil
}
