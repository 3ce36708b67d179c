// Command taskmasterctl is the operator CLI for a running Master: submit
// and cancel tasks, inspect status, and manage node admission.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/taskmaster/pkg/client"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskmasterctl",
	Short: "taskmasterctl talks to a taskmasterd admin façade",
}

func init() {
	rootCmd.PersistentFlags().String("admin-addr", "127.0.0.1:7300", "taskmasterd admin façade address")
	rootCmd.PersistentFlags().String("admin-secret", "taskmaster-admin", "Admin façade shared secret")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dial opens an authenticated admin client using the root command's
// persistent connection flags. Callers must Close it.
func dial(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("admin-addr")
	secret, _ := cmd.Flags().GetString("admin-secret")
	return client.NewClient(addr, secret)
}
