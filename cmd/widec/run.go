// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nikandfor/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/gogpu/wideshade"
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
	"github.com/gogpu/wideshade/layerfile"
)

func newRunCmd() *cobra.Command {
	var (
		opts    analyzeFlags
		lanes   int
		active  int
		maxIter int
		sets    []string
		attrs   []string
	)

	cmd := &cobra.Command{
		Use:   "run <layer.yaml>",
		Short: "Compile a layer and run it on one batch",
		Long: `Compile a layer and run it on one batch of lanes, then print every
output parameter. Globals are set with --set name[.component]=v[,v...]: a
single value is broadcast, otherwise one value per lane is required.
Attributes for getattribute are given with --attr key=c0[,c1,...].`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := layerfile.Load(args[0])
			if err != nil {
				return err
			}

			co := opts.compileOptions()
			co.Lanes = lanes
			co.MaxIterations = maxIter

			prog, err := wideshade.Compile(cmd.Context(), l, co)
			if err != nil {
				return err
			}

			prog.Attributes, err = parseAttributes(attrs)
			if err != nil {
				return err
			}

			batch, err := prog.NewBatch()
			if err != nil {
				return err
			}

			for _, s := range sets {
				in, err := parseInput(s, batch.Lanes())
				if err != nil {
					return err
				}

				if err = batch.SetGlobal(in.Global, in.Component, in.Value); err != nil {
					return errors.Wrap(err, "--set %v", s)
				}
			}

			if active > 0 {
				batch.SetActive(active)
			}

			if err = batch.Run(cmd.Context()); err != nil {
				return err
			}

			outs, err := batch.Outputs(0)
			if err != nil {
				return err
			}

			return printOutputs(cmd, outs)
		},
	}

	opts.register(cmd)

	f := cmd.Flags()
	f.IntVar(&lanes, "lanes", 0, "batch width (0 picks from CPU features)")
	f.IntVar(&active, "active", 0, "number of active lanes (0 means all)")
	f.IntVar(&maxIter, "max-iterations", wideshade.DefaultOptions().MaxIterations, "loop iteration bound")
	f.StringArrayVar(&sets, "set", nil, "set a shader global: name[.component]=v[,v...]")
	f.StringArrayVar(&attrs, "attr", nil, "provide an attribute: key=c0[,c1,...]")

	return cmd
}

func printOutputs(cmd *cobra.Command, outs map[string][]emit.Value) error {
	names := lo.Keys(outs)
	slices.Sort(names)

	w := cmd.OutOrStdout()
	for _, name := range names {
		comps := lo.Map(outs[name], func(v emit.Value, _ int) string {
			return fmt.Sprint(v)
		})

		if _, err := fmt.Fprintf(w, "%s = %s\n", name, strings.Join(comps, " ")); err != nil {
			return err
		}
	}

	return nil
}

// parseInput parses name[.component]=v[,v...] using the type of the
// global from the default table.
func parseInput(s string, lanes int) (in wideshade.Input, err error) {
	lhs, rhs, ok := strings.Cut(s, "=")
	if !ok {
		return in, errors.New("--set %q: want name=value", s)
	}

	in.Global = lhs
	if name, comp, ok := strings.Cut(lhs, "."); ok {
		in.Global = name
		if in.Component, err = strconv.Atoi(comp); err != nil {
			return in, errors.Wrap(err, "--set %q: component", s)
		}
	}

	i, ok := ir.DefaultGlobals.Index(in.Global)
	if !ok {
		return in, errors.New("--set %q: unknown global %v", s, in.Global)
	}

	vals := strings.Split(rhs, ",")
	if len(vals) != 1 && len(vals) != lanes {
		return in, errors.New("--set %q: %d values for %d lanes", s, len(vals), lanes)
	}

	in.Value, err = parseValue(vals, ir.DefaultGlobals.Fields[i].Type.Base)
	if err != nil {
		return in, errors.Wrap(err, "--set %q", s)
	}

	return in, nil
}

func parseValue(vals []string, base ir.BaseType) (emit.Value, error) {
	v := &emit.Vec{T: emit.Type{Wide: len(vals) > 1}}

	switch base {
	case ir.BaseFloat:
		v.T.Kind = emit.KindFloat
		for _, s := range vals {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
			if err != nil {
				return nil, err
			}
			v.F = append(v.F, float32(f))
		}
	case ir.BaseInt:
		v.T.Kind = emit.KindInt
		for _, s := range vals {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
			if err != nil {
				return nil, err
			}
			v.I = append(v.I, int32(n))
		}
	case ir.BaseString:
		v.T.Kind = emit.KindString
		v.S = vals
	default:
		return nil, errors.New("globals of base %d cannot be set", base)
	}

	return v, nil
}

func parseAttributes(attrs []string) (wideshade.Attributes, error) {
	out := make(wideshade.Attributes, len(attrs))

	for _, a := range attrs {
		key, rhs, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, errors.New("--attr %q: want key=value", a)
		}

		for _, s := range strings.Split(rhs, ",") {
			v, err := parseValue([]string{s}, ir.BaseFloat)
			if err != nil {
				return nil, errors.Wrap(err, "--attr %q", a)
			}
			out[key] = append(out[key], v)
		}
	}

	return out, nil
}
