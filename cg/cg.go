package cg

import (
	"fmt"
	"github.com/dianpeng/plan2sql/plan"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type Config struct {
	Logger log.Logger

	// appended to every generated statement, ie ";", empty by default
	Terminator string
}

// Generate reconstructs the SQL statements equivalent to the plan. The
// statements are ordered by materialization dependency, a CREATE TABLE is
// always emitted before the statement reading from it, the terminal result
// is the last one. On error no statement is returned.
func Generate(x *plan.Plan, config *Config) ([]string, error) {
	var graph *plan.Graph
	if x != nil {
		graph = x.Graph
	}
	g := newQueryCodeGen(graph, config)
	return g.gen()
}

// Translate runs the whole pipeline, stage simplification, graph assembly and
// SQL reconstruction, over the stage DAG rooted at roots.
func Translate(roots []*plan.Stage, config *Config) ([]string, error) {
	c := defConfig(config)
	p, err := plan.Build(roots, &plan.Config{Logger: c.Logger})
	if err != nil {
		return nil, err
	}
	return Generate(p, &c)
}

func defConfig(config *Config) Config {
	c := Config{}
	if config != nil {
		c = *config
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	return c
}

// codegen from the plan graph to SQL. The graph is walked backward, from the
// terminal sink up to the table scans, and the statement is built outside-in.

type queryCodeGen struct {
	config Config
	g      *plan.Graph
	stmt   []string          // emitted statement, dependency order
	path   map[string]bool   // operator on the current backward path
	tables map[string]*frame // materialized operator, read back by later statements
}

func newQueryCodeGen(g *plan.Graph, config *Config) *queryCodeGen {
	return &queryCodeGen{
		config: defConfig(config),
		g:      g,
		path:   make(map[string]bool),
		tables: make(map[string]*frame),
	}
}

func (self *queryCodeGen) emit(s string) {
	level.Debug(self.config.Logger).Log("msg", "statement emitted", "index", len(self.stmt), "sql", s)
	self.stmt = append(self.stmt, s+self.config.Terminator)
}

func (self *queryCodeGen) gen() ([]string, error) {
	if self.g == nil {
		return nil, plan.NewError(plan.ErrMalformedPlanGraph, "terminal-sink", "", "plan has no graph")
	}

	leaves := self.g.Leaves()
	if len(leaves) != 1 {
		ids := []string{}
		for _, l := range leaves {
			ids = append(ids, l.ID)
		}
		return nil, plan.NewError(
			plan.ErrUnsupportedOperatorCombination,
			"terminal-sink",
			"",
			"exactly one terminal output is supported, got %d: %v",
			len(leaves),
			ids,
		)
	}

	sink := leaves[0]
	if !sink.Kind.IsSink() {
		return nil, plan.NewError(
			plan.ErrUnsupportedOperatorCombination,
			"terminal-sink",
			sink.ID,
			"terminal operator must be a sink, got %s",
			sink.Kind,
		)
	}

	final, err := self.terminal(sink)
	if err != nil {
		return nil, err
	}
	self.emit(final)
	return self.stmt, nil
}

// terminal statement, generated from the sink ending the plan
func (self *queryCodeGen) terminal(sink *plan.Operator) (string, error) {
	parents := self.g.Parents(sink)
	switch len(parents) {
	case 1:
		break
	case 0:
		return "", plan.NewError(
			plan.ErrMalformedPlanGraph,
			"terminal-sink",
			sink.ID,
			"sink has no parent",
		)
	default:
		return "", plan.NewError(
			plan.ErrUnsupportedOperatorCombination,
			"terminal-sink",
			sink.ID,
			"sink has %d parents, only one is supported",
			len(parents),
		)
	}

	p := parents[0]
	switch {
	case p.Kind.IsSink():
		// file sink feeding the list sink, the inner one ends the plan
		return self.terminal(p)

	case p.Kind == plan.KindGroupBy:
		if sink.Schema != nil && p.Schema != nil && !sink.Schema.Equal(p.Schema) {
			return "", plan.NewError(
				plan.ErrSchemaMismatch,
				rule(sink, p),
				sink.ID,
				"sink schema %s does not match group by schema %s",
				sink.SchemaString(),
				p.SchemaString(),
			)
		}
		f, err := self.frameOf(sink, p)
		if err != nil {
			return "", err
		}
		body, err := self.render(f, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CREATE TABLE %s AS (%s)", p.ID, body), nil

	default:
		f, err := self.frameOf(sink, p)
		if err != nil {
			return "", err
		}
		return self.render(f, false)
	}
}

func rule(child, parent *plan.Operator) string {
	return fmt.Sprintf("%s <- %s", child.Kind, parent.Kind)
}
