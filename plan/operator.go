package plan

import (
	"fmt"
	"strings"
)

type Column struct {
	Name string
	Type string
}

// Ordered list of output column of an operator. A nil schema means the source
// engine did not report one, which is different from an empty schema.
type Schema []Column

func (self Schema) Names() []string {
	out := make([]string, 0, len(self))
	for _, c := range self {
		out = append(out, c.Name)
	}
	return out
}

func (self Schema) Index(name string) int {
	for idx, c := range self {
		if c.Name == name {
			return idx
		}
	}
	return -1
}

// Textual form of the schema, ie (_col0: int, _col1: string). Schemas are
// compared by their textual form, exactly as the source engine prints them.
func (self Schema) String() string {
	if self == nil {
		return ""
	}
	l := []string{}
	for _, c := range self {
		l = append(l, fmt.Sprintf("%s: %s", c.Name, c.Type))
	}
	return fmt.Sprintf("(%s)", strings.Join(l, ", "))
}

func (self Schema) Equal(that Schema) bool {
	if self == nil || that == nil {
		return false
	}
	return self.String() == that.String()
}

// Physical table a TableScan reads from
type Table struct {
	Alias    string // query local alias of the table
	Database string // database, optional
	Name     string // physical table name, same as alias when empty
	Columns  Schema // list of column of the physical table
}

func (self *Table) QualifiedName() string {
	name := self.Name
	if name == "" {
		name = self.Alias
	}
	if self.Database != "" {
		return fmt.Sprintf("%s.%s", self.Database, name)
	}
	return name
}

func (self *Table) SameSource(that *Table) bool {
	return self.QualifiedName() == that.QualifiedName()
}

// One physical operator. Children and parents are operator id, the operator
// itself is owned by the Graph (or the Stage before it is assembled).
type Operator struct {
	ID       string
	Kind     Kind
	Schema   Schema
	StageID  string
	Children []string
	Parents  []string

	// column expression map, output column name to the upstream expression
	// that produces it
	ExprMap map[string]string

	// Filter
	Predicate        string
	PredicateColumns []string

	// Select, list of output expression, parallel to Schema
	Columns []string

	// GroupBy
	Keys         []string
	Aggregations []string
	Mode         string

	// Limit
	Limit int64

	// TableScan
	Table *Table

	// Join/MapJoin, one key list per join side
	JoinType string
	JoinKeys [][]string
}

func NewOperator(id string, kind Kind) *Operator {
	return &Operator{
		ID:   id,
		Kind: kind,
	}
}

func (self *Operator) HasParent(id string) bool { return contain(self.Parents, id) }
func (self *Operator) HasChild(id string) bool  { return contain(self.Children, id) }
func (self *Operator) IsRoot() bool             { return len(self.Parents) == 0 }
func (self *Operator) IsLeaf() bool             { return len(self.Children) == 0 }
func (self *Operator) SchemaString() string     { return self.Schema.String() }
func (self *Operator) String() string           { return fmt.Sprintf("%s[%s]", self.ID, self.Kind) }
func (self *Operator) addParent(id string) bool { return addUnique(&self.Parents, id) }
func (self *Operator) addChild(id string) bool  { return addUnique(&self.Children, id) }
func (self *Operator) IsMergeGroupBy() bool     { return isMergeMode(self.Mode) }
func (self *Operator) OutputNames() []string    { return self.Schema.Names() }

// Expr returns the upstream expression of the output column col, as declared
// by the column expression map of the operator.
func (self *Operator) Expr(col string) (string, bool) {
	e, ok := self.ExprMap[col]
	return e, ok
}

func isMergeMode(mode string) bool {
	switch strings.ToLower(mode) {
	case "mergepartial", "final":
		return true
	default:
		return false
	}
}

func contain(l []string, x string) bool {
	for _, v := range l {
		if v == x {
			return true
		}
	}
	return false
}

func addUnique(l *[]string, x string) bool {
	if contain(*l, x) {
		return false
	}
	*l = append(*l, x)
	return true
}
