// Package planfile decodes the stage/operator description of a physical plan,
// written either in YAML or JSON, into the plan model.
package planfile

import (
	"encoding/json"
	"github.com/cockroachdb/errors"
	"github.com/dianpeng/plan2sql/plan"
	"os"
	"sigs.k8s.io/yaml"
	"strings"
)

// File is the on disk layout of a plan file.
//
//	roots: [Stage-1]          # optional, stages without parent otherwise
//	stages:
//	  - id: Stage-1
//	    tops: [TS_0]
//	    dependents: [Stage-2]
//	    operators:
//	      - id: TS_0
//	        table: {alias: t, columns: "(a: int)"}
//	        schema: "(a: int)"
//	        children: [FS_1]
//	      - id: FS_1
//	        schema: "(a: int)"
type File struct {
	Roots  []string `json:"roots,omitempty"`
	Stages []Stage  `json:"stages"`
}

type Stage struct {
	ID          string     `json:"id"`
	Tops        []string   `json:"tops,omitempty"`
	Dependents  []string   `json:"dependents,omitempty"`
	Conditional bool       `json:"conditional,omitempty"`
	Branches    []string   `json:"branches,omitempty"`
	Operators   []Operator `json:"operators,omitempty"`
}

type Table struct {
	Alias    string `json:"alias"`
	Database string `json:"database,omitempty"`
	Name     string `json:"name,omitempty"`
	Columns  Schema `json:"columns,omitempty"`
}

type Operator struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind,omitempty"` // derived from the id prefix when empty
	Schema   Schema            `json:"schema,omitempty"`
	Children []string          `json:"children,omitempty"`
	ExprMap  map[string]string `json:"exprMap,omitempty"`

	Predicate        string     `json:"predicate,omitempty"`
	PredicateColumns []string   `json:"predicateColumns,omitempty"`
	Columns          []string   `json:"columns,omitempty"`
	Keys             []string   `json:"keys,omitempty"`
	Aggregations     []string   `json:"aggregations,omitempty"`
	Mode             string     `json:"mode,omitempty"`
	Limit            *int64     `json:"limit,omitempty"`
	Table            *Table     `json:"table,omitempty"`
	JoinType         string     `json:"joinType,omitempty"`
	JoinKeys         [][]string `json:"joinKeys,omitempty"`
}

// Schema accepts either the engine's textual form, ie "(_col0: int, b:
// string)", or a list of {name, type} object.
type Schema struct {
	Columns plan.Schema
	set     bool
}

type column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

func (self *Schema) UnmarshalJSON(data []byte) error {
	self.set = true
	if string(data) == "null" {
		self.set = false
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		s, err := ParseSchema(text)
		if err != nil {
			return err
		}
		self.Columns = s
		return nil
	}

	var l []column
	if err := json.Unmarshal(data, &l); err != nil {
		return errors.Wrap(err, "schema must be a string or a list of column")
	}
	self.Columns = plan.Schema{}
	for _, c := range l {
		self.Columns = append(self.Columns, plan.Column{Name: c.Name, Type: c.Type})
	}
	return nil
}

func (self Schema) schema() plan.Schema {
	if !self.set {
		return nil
	}
	if self.Columns == nil {
		return plan.Schema{}
	}
	return self.Columns
}

// ParseSchema parses the textual schema printed by the engine. Types may
// contain commas inside of brackets, ie decimal(10,2) or map<string,int>.
func ParseSchema(x string) (plan.Schema, error) {
	x = strings.TrimSpace(x)
	if strings.HasPrefix(x, "(") && strings.HasSuffix(x, ")") {
		x = x[1 : len(x)-1]
	}
	out := plan.Schema{}
	if strings.TrimSpace(x) == "" {
		return out, nil
	}

	for _, field := range splitTopLevel(x) {
		idx := strings.Index(field, ":")
		if idx < 0 {
			return nil, errors.Newf("schema field %q has no type", field)
		}
		name := strings.TrimSpace(field[:idx])
		if name == "" {
			return nil, errors.Newf("schema field %q has no name", field)
		}
		out = append(out, plan.Column{
			Name: name,
			Type: strings.TrimSpace(field[idx+1:]),
		})
	}
	return out, nil
}

func splitTopLevel(x string) []string {
	out := []string{}
	depth := 0
	start := 0
	for i, c := range x {
		switch c {
		case '(', '<', '[':
			depth++
		case ')', '>', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, x[start:i])
				start = i + 1
			}
		}
	}
	return append(out, x[start:])
}

// ----------------------------------------------------------------------------

// Parse decodes data, YAML or JSON, into a plan file.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "decode plan file")
	}
	return f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read plan file %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "plan file %s", path)
	}
	return f, nil
}

// LoadStages reads the plan file at path and returns its root stages.
func LoadStages(path string) ([]*plan.Stage, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return f.Build()
}

// Build converts the file into the plan model and returns the root stages.
func (self *File) Build() ([]*plan.Stage, error) {
	index := make(map[string]*plan.Stage)
	for _, s := range self.Stages {
		if s.ID == "" {
			return nil, errors.New("stage without id")
		}
		if _, ok := index[s.ID]; ok {
			return nil, errors.Newf("stage %s is defined twice", s.ID)
		}
		index[s.ID] = newStage(s)
	}

	lookup := func(from, id string) (*plan.Stage, error) {
		x, ok := index[id]
		if !ok {
			return nil, errors.Newf("stage %s references unknown stage %s", from, id)
		}
		return x, nil
	}

	branch := make(map[string]bool)
	for _, s := range self.Stages {
		x := index[s.ID]
		for _, id := range s.Dependents {
			d, err := lookup(s.ID, id)
			if err != nil {
				return nil, err
			}
			x.AddDependent(d)
		}
		for _, id := range s.Branches {
			b, err := lookup(s.ID, id)
			if err != nil {
				return nil, err
			}
			x.Branches = append(x.Branches, b)
			branch[id] = true
		}
		if err := buildOperators(x, s); err != nil {
			return nil, errors.Wrapf(err, "stage %s", s.ID)
		}
	}

	roots := []*plan.Stage{}
	if len(self.Roots) != 0 {
		for _, id := range self.Roots {
			r, err := lookup("roots", id)
			if err != nil {
				return nil, err
			}
			roots = append(roots, r)
		}
		return roots, nil
	}

	for _, s := range self.Stages {
		x := index[s.ID]
		if x.IsRoot() && !branch[s.ID] {
			roots = append(roots, x)
		}
	}
	if len(roots) == 0 {
		return nil, errors.New("plan file has no root stage")
	}
	return roots, nil
}

func newStage(s Stage) *plan.Stage {
	if s.Conditional {
		return plan.NewConditionalStage(s.ID)
	}
	return plan.NewStage(s.ID)
}

func buildOperators(x *plan.Stage, s Stage) error {
	ops := []*plan.Operator{}
	for _, o := range s.Operators {
		op, err := newOperator(o)
		if err != nil {
			return err
		}
		if old := x.AddOperator(op); old != op {
			return errors.Newf("operator %s is defined twice", o.ID)
		}
		ops = append(ops, op)
	}

	for _, id := range s.Tops {
		op, ok := x.Operator(id)
		if !ok {
			return errors.Newf("top operator %s is not defined", id)
		}
		x.AddTop(op)
	}

	for _, op := range ops {
		children := op.Children
		op.Children = nil
		for _, c := range children {
			// a child may live in another stage, the assembly resolves it
			if !x.Connect(op.ID, c) {
				op.Children = append(op.Children, c)
			}
		}
	}
	return nil
}

func newOperator(o Operator) (*plan.Operator, error) {
	if o.ID == "" {
		return nil, errors.New("operator without id")
	}

	var kind plan.Kind
	if o.Kind != "" {
		k, err := plan.ParseKind(o.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "operator %s", o.ID)
		}
		kind = k
	} else {
		k, ok := plan.KindOfID(o.ID)
		if !ok {
			return nil, errors.Newf("operator %s: kind cannot be derived from the id", o.ID)
		}
		kind = k
	}

	op := plan.NewOperator(o.ID, kind)
	op.Schema = o.Schema.schema()
	op.Children = append([]string(nil), o.Children...)
	op.ExprMap = o.ExprMap
	op.Predicate = o.Predicate
	op.PredicateColumns = o.PredicateColumns
	op.Columns = o.Columns
	op.Keys = o.Keys
	op.Aggregations = o.Aggregations
	op.Mode = o.Mode
	op.JoinType = o.JoinType
	op.JoinKeys = o.JoinKeys

	if o.Limit != nil {
		op.Limit = *o.Limit
	} else if kind == plan.KindLimit {
		return nil, errors.Newf("limit operator %s has no limit", o.ID)
	}

	if o.Table != nil {
		op.Table = &plan.Table{
			Alias:    o.Table.Alias,
			Database: o.Table.Database,
			Name:     o.Table.Name,
			Columns:  o.Table.Columns.schema(),
		}
	}
	return op, nil
}
