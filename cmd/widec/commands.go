// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/nikandfor/errors"
	"github.com/spf13/cobra"

	"github.com/gogpu/wideshade"
	"github.com/gogpu/wideshade/layerfile"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <layer.yaml>",
		Short: "Check the structure of a layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := layerfile.Load(args[0])
			if err != nil {
				return err
			}

			errs, err := wideshade.Validate(l)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, e := range errs {
				fmt.Fprintf(w, "%s: %v\n", l.Name, e)
			}
			if len(errs) > 0 {
				return errors.New("%d validation errors", len(errs))
			}

			fmt.Fprintf(w, "%s: ok (%d symbols, %d ops)\n", l.Name, len(l.Symbols), len(l.Ops))
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <layer.yaml>",
		Short: "Print varying symbols and masked ops of a layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := layerfile.Load(args[0])
			if err != nil {
				return err
			}

			info, err := wideshade.Analyze(cmd.Context(), l, opts.compileOptions())
			if err != nil {
				return err
			}

			return info.Dump(cmd.OutOrStdout())
		},
	}

	opts.register(cmd)

	return cmd
}

type analyzeFlags struct {
	noValidate   bool
	debugUninit  bool
	lazyUserdata bool
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noValidate, "no-validate", false, "skip structural validation")
	cmd.Flags().BoolVar(&f.debugUninit, "debug-uninit", false, "initialize every local")
	cmd.Flags().BoolVar(&f.lazyUserdata, "lazy-userdata", false, "initialize interpolated parameters on first use")
}

func (f *analyzeFlags) compileOptions() wideshade.CompileOptions {
	opts := wideshade.DefaultOptions()
	opts.Validate = !f.noValidate
	opts.DebugUninit = f.debugUninit
	opts.LazyUserdata = f.lazyUserdata
	return opts
}
