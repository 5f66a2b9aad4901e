package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "curlsp-conformance",
		Short: "Conformance test harness for the curl language server",
		Long: `curlsp-conformance launches a language server, drives the LSP lifecycle
over JSON-RPC (initialize, didOpen, completion, hover, shutdown), and checks
that capability negotiation and feature responses are protocol-correct.`,
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
