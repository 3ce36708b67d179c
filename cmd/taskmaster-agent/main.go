// Command taskmaster-agent runs a single simulated cluster machine: it
// answers the Master's control RPCs and, once told to init, spawns its
// worker slots.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/cuemby/taskmaster/pkg/agent"
	"github.com/cuemby/taskmaster/pkg/discovery"
	"github.com/cuemby/taskmaster/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskmaster-agent",
	Short: "taskmaster-agent simulates one Node machine in the cluster",
	RunE:  runAgent,
}

func init() {
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("listen-addr", "0.0.0.0:7400", "Address the Master dials to reach this node's control RPC")
	rootCmd.Flags().Int("cores", 4, "Number of worker slots this node offers")
	rootCmd.Flags().Int("cpu-speed", 2400, "Simulated CPU speed in MHz, reported to the Master")
	rootCmd.Flags().Int64("memory", 8<<30, "Simulated memory in bytes, reported to the Master")
	rootCmd.Flags().Bool("advertise", true, "Advertise this node over mDNS for discovery by a Master")
	rootCmd.Flags().String("advertise-host", "127.0.0.1", "Host advertised in mDNS records")
}

func runAgent(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	jsonOut, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	logger := log.WithComponent("taskmaster-agent")

	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	cores, _ := cmd.Flags().GetInt("cores")
	cpuSpeed, _ := cmd.Flags().GetInt("cpu-speed")
	memory, _ := cmd.Flags().GetInt64("memory")
	advertiseEnabled, _ := cmd.Flags().GetBool("advertise")
	advertiseHost, _ := cmd.Flags().GetString("advertise-host")

	node, err := agent.NewNode(agent.Config{
		Cores:      cores,
		CPUSpeed:   cpuSpeed,
		Memory:     memory,
		ListenAddr: listenAddr,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	if advertiseEnabled {
		_, portStr, err := net.SplitHostPort(listenAddr)
		if err != nil {
			return fmt.Errorf("listen-addr: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("listen-addr: %w", err)
		}
		shutdown, err := discovery.Advertise("taskmaster-node", advertiseHost, port)
		if err != nil {
			logger.Warn().Err(err).Msg("mdns advertise failed; continuing without it")
		} else {
			defer shutdown()
		}
	}

	logger.Info().
		Str("listen_addr", listenAddr).
		Int("cores", cores).
		Int("cpu_speed", cpuSpeed).
		Int64("memory", memory).
		Msg("taskmaster-agent ready")

	return node.Serve()
}
