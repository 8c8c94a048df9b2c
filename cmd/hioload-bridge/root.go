// File: cmd/hioload-bridge/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags.
	Version = "dev"
	// Commit is set via -ldflags.
	Commit = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hioload-bridge",
		Short:        "Event-loop HTTP/WebSocket server bridge",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hioload-bridge %s (%s)\n", Version, Commit)
		},
	}
}
