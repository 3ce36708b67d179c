package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List queued and running task instances",
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-instance-id>",
	Short: "Cancel a queued or running task instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show worker and queue occupancy",
	RunE:  runPool,
}

func init() {
	rootCmd.AddCommand(statusCmd, cancelCmd, poolCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := dial(cmd)
	if err != nil {
		return fmt.Errorf("connect to admin façade: %w", err)
	}
	defer c.Close()

	statuses, err := c.TaskStatuses()
	if err != nil {
		return fmt.Errorf("fetch task statuses: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Println("no active task instances")
		return nil
	}
	for id, s := range statuses {
		fmt.Printf("%d\t%-10s progress=%d%% started=%d\n", id, s.CompletionType, s.Progress, s.Started)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task instance id %q: %w", args[0], err)
	}

	c, err := dial(cmd)
	if err != nil {
		return fmt.Errorf("connect to admin façade: %w", err)
	}
	defer c.Close()

	cancelled, err := c.CancelTask(id)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if cancelled {
		fmt.Printf("task instance %d cancelled\n", id)
	} else {
		fmt.Printf("task instance %d was already terminal or unknown\n", id)
	}
	return nil
}

func runPool(cmd *cobra.Command, args []string) error {
	c, err := dial(cmd)
	if err != nil {
		return fmt.Errorf("connect to admin façade: %w", err)
	}
	defer c.Close()

	stats, err := c.PoolStats()
	if err != nil {
		return fmt.Errorf("fetch pool stats: %w", err)
	}
	fmt.Printf("idle workers:    %d\n", stats.IdleWorkers)
	fmt.Printf("working workers: %d\n", stats.WorkingWorkers)
	fmt.Printf("queue depth:     %d\n", stats.QueueDepth)
	fmt.Printf("running tasks:   %d\n", stats.RunningTasks)
	return nil
}
