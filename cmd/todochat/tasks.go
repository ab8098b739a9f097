package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/todochat/internal/api"
	"github.com/mark3labs/todochat/internal/auth"
	"github.com/mark3labs/todochat/internal/config"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage tasks directly over the REST API",
	Long: `Manage tasks directly over the REST API, without the chat agent.

Useful for scripting or for a quick look at the list the agent is
working with.`,
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksDoneCmd)
	tasksCmd.AddCommand(tasksRmCmd)
}

// taskClient builds an authenticated API client from saved config and session.
func taskClient() (*api.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sess := auth.LoadSession(cfg.SessionPath())
	if !sess.Valid() {
		return nil, fmt.Errorf("not logged in\n\nRun 'todochat login' first")
	}

	return api.NewClient(cfg.APIBase, sess.Token), nil
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient()
		if err != nil {
			return err
		}

		tasks, err := client.ListTasks(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}

		for _, task := range tasks {
			mark := " "
			if task.Completed {
				mark = "x"
			}
			fmt.Printf("[%s] %d: %s\n", mark, task.ID, task.Title)
			if task.Description != "" {
				fmt.Printf("       %s\n", task.Description)
			}
		}
		return nil
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient()
		if err != nil {
			return err
		}

		title := strings.Join(args, " ")
		task, err := client.CreateTask(cmd.Context(), title, "")
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}

		fmt.Printf("Created task %d: %s\n", task.ID, task.Title)
		return nil
	},
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient()
		if err != nil {
			return err
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id: %s", args[0])
		}

		task, err := client.CompleteTask(cmd.Context(), id)
		if err != nil {
			if api.IsNotFound(err) {
				return fmt.Errorf("task %d not found", id)
			}
			return fmt.Errorf("completing task: %w", err)
		}

		fmt.Printf("Completed task %d: %s\n", task.ID, task.Title)
		return nil
	},
}

var tasksRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient()
		if err != nil {
			return err
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id: %s", args[0])
		}

		if err := client.DeleteTask(cmd.Context(), id); err != nil {
			if api.IsNotFound(err) {
				return fmt.Errorf("task %d not found", id)
			}
			return fmt.Errorf("deleting task: %w", err)
		}

		fmt.Printf("Deleted task %d\n", id)
		return nil
	},
}
