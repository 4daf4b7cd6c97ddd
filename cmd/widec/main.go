// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command widec is the wideshade layer compiler CLI.
//
// Usage:
//
//	widec <command> [options] <layer.yaml>
//
// Examples:
//
//	widec validate layer.yaml                  # Check structure
//	widec analyze layer.yaml                   # Print the divergence classification
//	widec run --lanes 4 --set u=0,1,2,3 layer.yaml
//	widec run -v wide_op layer.yaml            # Trace every lowered op
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nikandfor/tlog"
	"github.com/spf13/cobra"
)

const widecVersion = "0.1.0-dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose string

	root := &cobra.Command{
		Use:           "widec",
		Short:         "Compile shading-language layers to wide code",
		Version:       widecVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose == "" {
				return
			}

			tlog.DefaultLogger = tlog.New(tlog.NewConsoleWriter(cmd.ErrOrStderr(), tlog.LstdFlags))
			tlog.SetVerbosity(verbose)

			cmd.SetContext(tlog.ContextWithSpan(cmd.Context(), tlog.Root()))
		},
	}

	root.PersistentFlags().StringVarP(&verbose, "verbose", "v", "", "tlog topics to trace (e.g. wide_op,analysis_walk)")

	root.AddCommand(
		newValidateCmd(),
		newAnalyzeCmd(),
		newRunCmd(),
	)

	return root
}
