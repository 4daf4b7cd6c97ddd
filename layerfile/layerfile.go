// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package layerfile reads layer descriptions from YAML.
//
// A layer file lists symbols and ops:
//
//	name: brighten
//	symbols:
//	  - {name: Kd, symtype: param, type: float, default: 0.5}
//	  - {name: Cout, symtype: output, type: color, derivs: true}
//	  - {name: two, symtype: const, type: float, value: 2}
//	ops:
//	  - {op: mul, args: [Cout, Kd, two]}
//
// Op arguments name symbols. A scoped local is named by its mangled name
// or, when unambiguous, by its plain name. Read and write flags default to
// ir.DefaultAccess; reads and writes lists override them.
package layerfile

import (
	"os"
	"strings"

	"github.com/nikandfor/errors"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/wideshade/ir"
)

type (
	file struct {
		Name    string   `yaml:"name"`
		Index   int      `yaml:"index"`
		Symbols []symbol `yaml:"symbols"`
		Ops     []op     `yaml:"ops"`

		// Main is [begin, end); it defaults to all ops.
		Main []int `yaml:"main"`
	}

	symbol struct {
		Name    string    `yaml:"name"`
		SymType string    `yaml:"symtype"`
		Type    string    `yaml:"type"`
		Scope   int       `yaml:"scope"`
		Derivs  bool      `yaml:"derivs"`
		Value   yaml.Node `yaml:"value"`
		Default yaml.Node `yaml:"default"`
		Alias   string    `yaml:"alias"`
		Init    []int     `yaml:"init"`

		Connected      bool  `yaml:"connected"`
		ConnectedDown  bool  `yaml:"connected_down"`
		EverRead       *bool `yaml:"ever_read"`
		RendererOutput *bool `yaml:"renderer_output"`
		Lockgeom       *bool `yaml:"lockgeom"`
	}

	op struct {
		Op     string   `yaml:"op"`
		Args   []string `yaml:"args"`
		Reads  []int    `yaml:"reads"`
		Writes []int    `yaml:"writes"`
		Jumps  []int    `yaml:"jumps"`
	}
)

// Load reads and parses the layer file at path.
func Load(path string) (*ir.Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read layer file")
	}

	l, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "%v", path)
	}

	return l, nil
}

// Parse decodes a layer description. Structural problems are reported as
// *ir.Error of kind ErrInvalidLayer; the result is not validated.
func Parse(data []byte) (*ir.Layer, error) {
	var f file

	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode layer")
	}

	l := &ir.Layer{
		Name:    f.Name,
		Index:   f.Index,
		Symbols: make([]ir.Symbol, 0, len(f.Symbols)),
		Ops:     make([]ir.Instruction, 0, len(f.Ops)),
	}

	names := newNames()

	for i := range f.Symbols {
		s, err := convSymbol(&f.Symbols[i])
		if err != nil {
			return nil, ir.Errorf(ir.ErrInvalidLayer, "symbol %d (%s): %v", i, f.Symbols[i].Name, err).At(l.Name, -1)
		}

		if err := names.add(s, ir.SymbolHandle(i)); err != nil {
			return nil, ir.Errorf(ir.ErrInvalidLayer, "symbol %d: %v", i, err).At(l.Name, -1)
		}

		l.Symbols = append(l.Symbols, s)
	}

	for i := range f.Symbols {
		a := f.Symbols[i].Alias
		if a == "" {
			continue
		}

		h, err := names.lookup(a)
		if err != nil {
			return nil, ir.Errorf(ir.ErrInvalidLayer, "alias of %s: %v", f.Symbols[i].Name, err).At(l.Name, -1)
		}

		l.Symbols[i].Alias = &h
	}

	for i := range f.Ops {
		in, err := convOp(&f.Ops[i], names)
		if err != nil {
			return nil, ir.Errorf(ir.ErrInvalidLayer, "%v", err).At(l.Name, i)
		}

		l.Ops = append(l.Ops, in)
	}

	switch len(f.Main) {
	case 0:
		l.MainEnd = len(l.Ops)
	case 2:
		l.MainBegin, l.MainEnd = f.Main[0], f.Main[1]
	default:
		return nil, ir.Errorf(ir.ErrInvalidLayer, "main: want [begin, end], got %d values", len(f.Main)).At(l.Name, -1)
	}

	return l, nil
}

func convSymbol(fs *symbol) (s ir.Symbol, err error) {
	s = ir.Symbol{
		Name:          fs.Name,
		Scope:         fs.Scope,
		HasDerivs:     fs.Derivs,
		Connected:     fs.Connected,
		ConnectedDown: fs.ConnectedDown,
	}

	if s.Name == "" {
		return s, errors.New("missing name")
	}

	s.SymType, err = parseSymType(fs.SymType)
	if err != nil {
		return s, err
	}

	switch {
	case fs.Type != "":
		t, ok := ir.ParseType(fs.Type)
		if !ok {
			return s, errors.New("bad type %q", fs.Type)
		}

		s.Type = t
	case s.SymType == ir.SymGlobal:
		s.Type = ir.Float

		if i, ok := ir.DefaultGlobals.Index(s.Name); ok {
			f := ir.DefaultGlobals.Fields[i]
			s.Type = f.Type
			s.HasDerivs = s.HasDerivs || f.HasDerivs
		}
	default:
		return s, errors.New("missing type")
	}

	s.Const, err = payload(&fs.Value, s.Type)
	if err != nil {
		return s, errors.Wrap(err, "value")
	}

	s.Default, err = payload(&fs.Default, s.Type)
	if err != nil {
		return s, errors.Wrap(err, "default")
	}

	if s.SymType == ir.SymConst && s.Const == nil {
		return s, errors.New("constant without value")
	}

	param := s.IsParam()
	s.EverRead = flag(fs.EverRead, s.SymType == ir.SymParam)
	s.RendererOutput = flag(fs.RendererOutput, s.SymType == ir.SymOutputParam)
	s.Lockgeom = flag(fs.Lockgeom, param)

	switch len(fs.Init) {
	case 0:
	case 2:
		s.InitBegin, s.InitEnd = fs.Init[0], fs.Init[1]
	default:
		return s, errors.New("init: want [begin, end], got %d values", len(fs.Init))
	}

	return s, nil
}

func parseSymType(s string) (ir.SymType, error) {
	switch strings.ToLower(s) {
	case "global":
		return ir.SymGlobal, nil
	case "param":
		return ir.SymParam, nil
	case "output", "outputparam", "oparam":
		return ir.SymOutputParam, nil
	case "local":
		return ir.SymLocal, nil
	case "temp":
		return ir.SymTemp, nil
	case "const":
		return ir.SymConst, nil
	case "":
		return 0, errors.New("missing symtype")
	default:
		return 0, errors.New("unknown symtype %q", s)
	}
}

// payload decodes a literal. A scalar node is a one-entry list.
func payload(n *yaml.Node, t ir.TypeSpec) (*ir.ConstValue, error) {
	if n.Kind == 0 {
		return nil, nil
	}

	if n.Kind == yaml.ScalarNode {
		n = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{n}}
	}

	var c ir.ConstValue
	var err error

	switch {
	case t.IsClosureBased():
		// closures are never literal; an empty list is the null closure
		err = n.Decode(&c.Ints)
		if err == nil && len(c.Ints) != 0 {
			err = errors.New("closure literal must be empty")
		}
		c.Ints = nil
	case t.Base == ir.BaseFloat:
		err = n.Decode(&c.Floats)
	case t.Base == ir.BaseInt:
		err = n.Decode(&c.Ints)
	case t.Base == ir.BaseString:
		err = n.Decode(&c.Strings)
	default:
		return nil, errors.New("%v has no literal form", t)
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

func flag(p *bool, def bool) bool {
	if p == nil {
		return def
	}

	return *p
}

func convOp(fo *op, names *names) (in ir.Instruction, err error) {
	in = ir.Instruction{
		Op:    ir.Opcode(fo.Op),
		Jumps: ir.NoJumps,
	}

	if fo.Op == "" {
		return in, errors.New("missing opcode")
	}

	if len(fo.Jumps) > ir.MaxJumps {
		return in, errors.New("%d jumps, at most %d", len(fo.Jumps), ir.MaxJumps)
	}

	copy(in.Jumps[:], fo.Jumps)

	if fo.Reads == nil && fo.Writes == nil {
		in.Args = ir.DefaultAccess(in.Op, len(fo.Args))
	} else {
		in.Args = make([]ir.Arg, len(fo.Args))

		if err = mark(in.Args, fo.Reads, func(a *ir.Arg) { a.Read = true }); err != nil {
			return in, errors.Wrap(err, "reads")
		}

		if err = mark(in.Args, fo.Writes, func(a *ir.Arg) { a.Write = true }); err != nil {
			return in, errors.Wrap(err, "writes")
		}
	}

	for i, name := range fo.Args {
		in.Args[i].Sym, err = names.lookup(name)
		if err != nil {
			return in, errors.Wrap(err, "arg %d", i)
		}
	}

	return in, nil
}

func mark(args []ir.Arg, idx []int, f func(*ir.Arg)) error {
	for _, i := range idx {
		if i < 0 || i >= len(args) {
			return errors.New("index %d of %d args", i, len(args))
		}

		f(&args[i])
	}

	return nil
}
