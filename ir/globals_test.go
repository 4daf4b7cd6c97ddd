package ir

import "testing"

func TestDefaultGlobals(t *testing.T) {
	tests := []struct {
		name    string
		uniform bool
	}{
		{"renderstate", true},
		{"raytype", true},
		{"Ci", true},
		{"P", false},
		{"N", false},
		{"u", false},
		{"time", false},
		{"backfacing", false},
		{"notaglobal", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultGlobals.IsUniform(tt.name); got != tt.uniform {
				t.Errorf("IsUniform(%q) = %v, want %v", tt.name, got, tt.uniform)
			}
		})
	}

	i, ok := DefaultGlobals.Index("P")
	if !ok {
		t.Fatal("P missing")
	}
	if f := DefaultGlobals.Fields[i]; f.Type != Point || !f.HasDerivs {
		t.Errorf("P = %+v", f)
	}
}

func TestNewGlobalTable(t *testing.T) {
	tab := NewGlobalTable([]GlobalField{
		{Name: "a", Type: Float, Uniform: true},
		{Name: "b", Type: Int},
	})
	if i, ok := tab.Index("b"); !ok || i != 1 {
		t.Errorf("Index(b) = %d, %v", i, ok)
	}
	if !tab.IsUniform("a") || tab.IsUniform("b") {
		t.Error("IsUniform wrong")
	}
}
