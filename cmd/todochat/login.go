package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/mark3labs/todochat/internal/auth"
	"github.com/mark3labs/todochat/internal/config"
)

var loginFlags struct {
	email string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the Todo server",
	Long: `Authenticate against the Todo server and save the session token.

The token is stored in the data directory and reused by 'todochat chat'
and 'todochat tasks' until it expires.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginFlags.email, "email", "e", "", "Account email (prompted if omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	email := loginFlags.email
	if email == "" {
		fmt.Print("Email: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(os.Stdin.Fd())
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	sess, err := auth.Login(cmd.Context(), cfg.APIBase, email, string(password))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := auth.SaveSession(cfg.SessionPath(), sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	fmt.Printf("Logged in as %s\n", sess.Email)
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the saved session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := auth.ClearSession(cfg.SessionPath()); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}
