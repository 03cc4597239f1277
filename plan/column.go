package plan

// Type placeholder of a column discovered through a column expression map,
// whose type is not reported by any operator we have seen so far.
const UnknownType = "unknown"

// (operator, local column name) pair, ie how an operator exposes a logical
// column in its own schema
type ColumnAlias struct {
	Operator string
	Name     string
}

type columnEntry struct {
	key     string
	ty      string
	aliases []ColumnAlias
}

// ColumnTypeMap is an ordered column name to type mapping. The insertion order
// is the physical column order. Each entry also records every operator that
// exposes the column together with the name used by that operator, which is
// how positional names like _col0 are traced back to a logical column.
type ColumnTypeMap struct {
	entries []*columnEntry
	index   map[string]int
	alias   map[ColumnAlias]int
}

func NewColumnTypeMap() *ColumnTypeMap {
	return &ColumnTypeMap{
		index: make(map[string]int),
		alias: make(map[ColumnAlias]int),
	}
}

// Add inserts the column if it is not there yet and returns its position. An
// existing column with unknown type picks up the new type.
func (self *ColumnTypeMap) Add(key, ty string) int {
	if idx, ok := self.index[key]; ok {
		if e := self.entries[idx]; e.ty == UnknownType && ty != "" {
			e.ty = ty
		}
		return idx
	}
	if ty == "" {
		ty = UnknownType
	}
	self.entries = append(self.entries, &columnEntry{
		key: key,
		ty:  ty,
	})
	idx := len(self.entries) - 1
	self.index[key] = idx
	return idx
}

// Alias records that operator op exposes column key under name. Returns false
// when key is not part of the map.
func (self *ColumnTypeMap) Alias(key string, op string, name string) bool {
	idx, ok := self.index[key]
	if !ok {
		return false
	}
	a := ColumnAlias{
		Operator: op,
		Name:     name,
	}
	if old, ok := self.alias[a]; ok && old == idx {
		return true
	}
	self.alias[a] = idx
	e := self.entries[idx]
	e.aliases = append(e.aliases, a)
	return true
}

func (self *ColumnTypeMap) Lookup(op string, name string) (string, bool) {
	idx, ok := self.LookupIndex(op, name)
	if !ok {
		return "", false
	}
	return self.entries[idx].key, true
}

func (self *ColumnTypeMap) LookupIndex(op string, name string) (int, bool) {
	idx, ok := self.alias[ColumnAlias{Operator: op, Name: name}]
	return idx, ok
}

func (self *ColumnTypeMap) Index(key string) int {
	if idx, ok := self.index[key]; ok {
		return idx
	}
	return -1
}

func (self *ColumnTypeMap) At(idx int) (string, string) {
	e := self.entries[idx]
	return e.key, e.ty
}

func (self *ColumnTypeMap) Type(key string) string {
	if idx, ok := self.index[key]; ok {
		return self.entries[idx].ty
	}
	return ""
}

func (self *ColumnTypeMap) Aliases(key string) []ColumnAlias {
	idx, ok := self.index[key]
	if !ok {
		return nil
	}
	return append([]ColumnAlias(nil), self.entries[idx].aliases...)
}

// Operators returns every operator that exposes the column, in the order they
// were recorded.
func (self *ColumnTypeMap) Operators(key string) []string {
	out := []string{}
	for _, a := range self.Aliases(key) {
		addUnique(&out, a.Operator)
	}
	return out
}

func (self *ColumnTypeMap) Keys() []string {
	out := make([]string, 0, len(self.entries))
	for _, e := range self.entries {
		out = append(out, e.key)
	}
	return out
}

func (self *ColumnTypeMap) Len() int { return len(self.entries) }

func (self *ColumnTypeMap) Clone() *ColumnTypeMap {
	out := NewColumnTypeMap()
	for _, e := range self.entries {
		out.Add(e.key, e.ty)
		for _, a := range e.aliases {
			out.Alias(e.key, a.Operator, a.Name)
		}
	}
	return out
}
