package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mark3labs/todochat/internal/config"
	"github.com/mark3labs/todochat/internal/stream"
)

var setupFlags struct {
	project bool
	force   bool
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create todochat configuration file",
	Long: `Create a todochat configuration file with sensible defaults.

By default, creates a global config at ~/.config/todochat/todochat.yml.
Use --project to create a project-local config in the current directory.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupFlags.project, "project", "p", false, "Create config in current directory instead of global location")
	setupCmd.Flags().BoolVarP(&setupFlags.force, "force", "f", false, "Overwrite existing config file")
}

func runSetup(cmd *cobra.Command, args []string) error {
	targetPath := config.GlobalPath()
	if setupFlags.project {
		targetPath = config.ProjectPath()
	}

	if !setupFlags.force && fileExists(targetPath) {
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", targetPath)
	}

	defaults := stream.DefaultConfig()
	cfg := &config.Config{
		APIBase:             "http://localhost:8484",
		LogLevel:            "info",
		LogFile:             "",
		DataDir:             config.DefaultDataDir(),
		MaxRetries:          defaults.MaxRetries,
		RetryDelayMs:        int(defaults.InitialRetryDelay.Milliseconds()),
		MaxRetryDelayMs:     int(defaults.MaxRetryDelay.Milliseconds()),
		ConnectionTimeoutMs: int(defaults.ConnectionTimeout.Milliseconds()),
		Markdown:            true,
	}

	var err error
	if setupFlags.project {
		err = config.WriteProject(cfg)
	} else {
		err = config.WriteGlobal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Config written to: %s\n\n", targetPath)
	fmt.Println("Run 'todochat login' to authenticate, then 'todochat chat' to start.")

	return nil
}

// fileExists checks if a file exists (helper for setup command).
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
