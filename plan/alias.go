package plan

// TableAliasRegistry maps a query local alias to the physical table it is
// bound to. The same alias may be bound by several TableScan reading the same
// physical table, ie same source but different scan instance. Binding an alias
// already used by a different physical table is a plan inconsistency.
type TableAliasRegistry struct {
	table map[string]*Table
	scan  map[string][]string // alias -> id of operator that bound it
	order []string
}

func NewTableAliasRegistry() *TableAliasRegistry {
	return &TableAliasRegistry{
		table: make(map[string]*Table),
		scan:  make(map[string][]string),
	}
}

// Bind binds the alias of table for operator op. It returns true when the
// alias is already bound to the same physical table, ie this is another scan
// instance of a known source.
func (self *TableAliasRegistry) Bind(op string, table *Table) (bool, error) {
	if table == nil || table.Alias == "" {
		return false, NewError(
			ErrMalformedPlanGraph,
			"bind-alias",
			op,
			"table scan has no table alias",
		)
	}

	alias := table.Alias
	if old, ok := self.table[alias]; ok {
		if !old.SameSource(table) {
			return false, NewError(
				ErrMalformedPlanGraph,
				"bind-alias",
				op,
				"alias %s is bound to %s by %v, cannot rebind it to %s",
				alias,
				old.QualifiedName(),
				self.scan[alias],
				table.QualifiedName(),
			)
		}
		l := self.scan[alias]
		addUnique(&l, op)
		self.scan[alias] = l
		return true, nil
	}

	self.table[alias] = table
	self.scan[alias] = []string{op}
	self.order = append(self.order, alias)
	return false, nil
}

func (self *TableAliasRegistry) Table(alias string) (*Table, bool) {
	t, ok := self.table[alias]
	return t, ok
}

// Scans returns every operator that bound the alias.
func (self *TableAliasRegistry) Scans(alias string) []string {
	return append([]string(nil), self.scan[alias]...)
}

// Has the operator op bound the alias
func (self *TableAliasRegistry) BoundBy(alias string, op string) bool {
	return contain(self.scan[alias], op)
}

func (self *TableAliasRegistry) Aliases() []string {
	return append([]string(nil), self.order...)
}

func (self *TableAliasRegistry) Len() int { return len(self.order) }
