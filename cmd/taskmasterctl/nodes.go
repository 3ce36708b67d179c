package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List nodes known to the cluster",
	RunE:  runNodes,
}

var promoteCmd = &cobra.Command{
	Use:   "promote <host:port>",
	Short: "Admit a discovered node and begin pairing with it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromote,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <node-id>",
	Short: "Drop a paired node, clearing its TOFU key",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(nodesCmd, promoteCmd, forgetCmd)
}

func runNodes(cmd *cobra.Command, args []string) error {
	c, err := dial(cmd)
	if err != nil {
		return fmt.Errorf("connect to admin façade: %w", err)
	}
	defer c.Close()

	addrs, err := c.KnownNodes()
	if err != nil {
		return fmt.Errorf("fetch known nodes: %w", err)
	}
	if len(addrs) == 0 {
		fmt.Println("no known nodes")
		return nil
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}

func runPromote(cmd *cobra.Command, args []string) error {
	host, portStr, err := net.SplitHostPort(args[0])
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[0], err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in %q: %w", args[0], err)
	}

	c, err := dial(cmd)
	if err != nil {
		return fmt.Errorf("connect to admin façade: %w", err)
	}
	defer c.Close()

	if err := c.PromoteNode(host, port); err != nil {
		return fmt.Errorf("promote node: %w", err)
	}
	fmt.Printf("promoting %s:%d\n", host, port)
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	c, err := dial(cmd)
	if err != nil {
		return fmt.Errorf("connect to admin façade: %w", err)
	}
	defer c.Close()

	if err := c.ForgetNode(args[0]); err != nil {
		return fmt.Errorf("forget node: %w", err)
	}
	fmt.Printf("forgot node %s\n", args[0])
	return nil
}
