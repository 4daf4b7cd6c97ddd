package ir

// GlobalField is one field of the shader-globals record.
type GlobalField struct {
	Name      string
	Type      TypeSpec
	HasDerivs bool

	// Uniform fields hold one value per batch; the others one per lane.
	Uniform bool
}

// GlobalTable is the fixed layout of the shader-globals record shared by
// every layer. Field order is the record order.
type GlobalTable struct {
	Fields []GlobalField
	index  map[string]int
}

// NewGlobalTable builds a table from its fields.
func NewGlobalTable(fields []GlobalField) *GlobalTable {
	t := &GlobalTable{
		Fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		t.index[f.Name] = i
	}
	return t
}

// Index returns the record position of the named field.
func (t *GlobalTable) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// IsUniform reports the fixed shape of a global. Names missing from the
// table are varying.
func (t *GlobalTable) IsUniform(name string) bool {
	i, ok := t.index[name]
	if !ok {
		return false
	}
	return t.Fields[i].Uniform
}

// DefaultGlobals is the process-wide shader-globals layout.
var DefaultGlobals = NewGlobalTable([]GlobalField{
	{Name: "renderstate", Type: Ptr, Uniform: true},
	{Name: "tracedata", Type: Ptr, Uniform: true},
	{Name: "objdata", Type: Ptr, Uniform: true},
	{Name: "shadingcontext", Type: Ptr, Uniform: true},
	{Name: "renderer", Type: Ptr, Uniform: true},
	{Name: "Ci", Type: Closure, Uniform: true},
	{Name: "raytype", Type: Int, Uniform: true},
	{Name: "pad0", Type: Int, Uniform: true},
	{Name: "pad1", Type: Int, Uniform: true},
	{Name: "pad2", Type: Int, Uniform: true},

	{Name: "P", Type: Point, HasDerivs: true},
	{Name: "dPdz", Type: Vector},
	{Name: "I", Type: Vector, HasDerivs: true},
	{Name: "N", Type: Normal},
	{Name: "Ng", Type: Normal},
	{Name: "u", Type: Float, HasDerivs: true},
	{Name: "v", Type: Float, HasDerivs: true},
	{Name: "dPdu", Type: Vector},
	{Name: "dPdv", Type: Vector},
	{Name: "time", Type: Float},
	{Name: "dtime", Type: Float},
	{Name: "dPdtime", Type: Vector},
	{Name: "Ps", Type: Point, HasDerivs: true},
	{Name: "object2common", Type: Ptr},
	{Name: "shader2common", Type: Ptr},
	{Name: "surfacearea", Type: Float},
	{Name: "flipHandedness", Type: Int},
	{Name: "backfacing", Type: Int},
})
