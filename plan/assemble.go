package plan

import (
	"github.com/dianpeng/plan2sql/sql"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ----------------------------------------------------------------------------
// Graph assembly. Merge each stage's operator tree into one global graph,
// in the order generated by stage simplification.
//
// 1) intra-stage discovery, DFS from each top operator, register every
//    reachable operator and an edge for every parent -> child pair, a child
//    living in another stage is linked once every stage is discovered
//
// 2) stage boundary stitching, the leaves of one stage are linked with the
//    top operators of the next stage when their schema matches
//
// 3) map join relinking, the probe side placeholder of a map join is only
//    loosely associated with the build side hash table sink, which lives in
//    another stage, the link is restored by decoding the placeholder id
// ----------------------------------------------------------------------------

type assembler struct {
	g      *Graph
	logger log.Logger
	found  map[*Stage][]*Operator // operators discovered per stage, DFS order
	remote []remoteChild          // child living in another stage
}

type remoteChild struct {
	stage  *Stage
	parent *Operator
	child  string
}

func Assemble(stages []*Stage, logger log.Logger) (*Graph, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	a := &assembler{
		g:      NewGraph(),
		logger: logger,
		found:  make(map[*Stage][]*Operator),
	}
	if err := a.assemble(stages); err != nil {
		return nil, err
	}
	return a.g, nil
}

func (self *assembler) assemble(stages []*Stage) error {
	for _, s := range stages {
		if err := self.discover(s); err != nil {
			return err
		}
	}
	if err := self.linkRemote(); err != nil {
		return err
	}

	for i := 0; i+1 < len(stages); i++ {
		if err := self.stitch(stages[i], stages[i+1]); err != nil {
			return err
		}
	}

	if err := self.relinkMapJoin(); err != nil {
		return err
	}

	level.Debug(self.logger).Log(
		"msg", "graph assembled",
		"nodes", self.g.NodeSize(),
		"edges", self.g.EdgeSize(),
		"roots", len(self.g.Roots()),
		"leaves", len(self.g.Leaves()),
	)
	return nil
}

// ----------------------------------------------------------------------------
// intra-stage discovery

func (self *assembler) top(s *Stage, id string) (*Operator, error) {
	op, ok := s.Operator(id)
	if !ok {
		return nil, newStageError(
			ErrMalformedPlanGraph,
			"discover",
			s.ID,
			"top operator %s is not part of the stage",
			id,
		)
	}
	return op, nil
}

func (self *assembler) discover(s *Stage) error {
	visited := make(map[string]bool)
	for _, id := range s.Tops {
		op, err := self.top(s, id)
		if err != nil {
			return err
		}
		if err := self.dfs(s, op, visited); err != nil {
			return err
		}
	}
	return nil
}

func (self *assembler) dfs(s *Stage, op *Operator, visited map[string]bool) error {
	if visited[op.ID] {
		return nil
	}
	visited[op.ID] = true

	op = self.g.AddNode(op)
	self.found[s] = append(self.found[s], op)

	if op.Kind == KindTableScan {
		if err := self.bindTableScan(op); err != nil {
			return err
		}
	}

	for _, cid := range op.Children {
		child, ok := s.Operator(cid)
		if !ok {
			self.remote = append(self.remote, remoteChild{
				stage:  s,
				parent: op,
				child:  cid,
			})
			continue
		}
		if err := self.dfs(s, child, visited); err != nil {
			return err
		}
		if err := self.g.Link(op, self.node(child), EdgeStage); err != nil {
			return err
		}
	}
	return nil
}

// link every child living in another stage, which may come before or after
// the stage of its parent in execution order
func (self *assembler) linkRemote() error {
	for _, r := range self.remote {
		child, ok := self.g.Node(r.child)
		if !ok {
			return &Error{
				Kind:  ErrMalformedPlanGraph,
				Rule:  "discover",
				Node:  r.parent.ID,
				Stage: r.stage.ID,
				cause: errorf("child %s is not part of any stage", r.child),
			}
		}
		if err := self.g.Link(r.parent, child, EdgeStage); err != nil {
			return err
		}
		level.Debug(self.logger).Log(
			"msg", "cross stage child linked",
			"parent", r.parent.ID,
			"child", child.ID,
			"stage", r.stage.ID,
		)
	}
	return nil
}

func (self *assembler) node(op *Operator) *Operator {
	if x, ok := self.g.Node(op.ID); ok {
		return x
	}
	return op
}

// register the table alias and publish the base column of a table scan
func (self *assembler) bindTableScan(op *Operator) error {
	t := op.Table
	if t == nil {
		// reading an intermediate result of an upstream stage, nothing to bind
		return nil
	}
	again, err := self.g.Alias.Bind(op.ID, t)
	if err != nil {
		return err
	}

	cols := t.Columns
	if cols == nil {
		cols = op.Schema
	}
	for _, c := range cols {
		key := t.Alias + "." + c.Name
		self.g.Sources.Add(key, c.Type)
		self.g.Sources.Alias(key, op.ID, c.Name)
	}

	if again {
		level.Debug(self.logger).Log(
			"msg", "table alias rebound by another scan",
			"alias", t.Alias,
			"scans", len(self.g.Alias.Scans(t.Alias)),
		)
	}
	return nil
}

// ----------------------------------------------------------------------------
// stage boundary stitching

func (self *assembler) leaves(s *Stage) []*Operator {
	out := []*Operator{}
	for _, op := range self.found[s] {
		if op.IsLeaf() {
			out = append(out, op)
		}
	}
	return out
}

func (self *assembler) tops(s *Stage) []*Operator {
	out := []*Operator{}
	for _, id := range s.Tops {
		if op, ok := self.g.Node(id); ok {
			out = append(out, op)
		}
	}
	return out
}

func (self *assembler) link(leaf, root *Operator, label string) error {
	if err := self.g.Link(leaf, root, label); err != nil {
		return err
	}
	level.Debug(self.logger).Log(
		"msg", "stage boundary linked",
		"from", leaf.ID,
		"to", root.ID,
		"label", label,
	)
	return nil
}

// Positional link of the stage boundary, ie the schema does not print the
// same but both sides use the same amount of generated _colN name. A hash
// table sink without children is allowed to feed a table scan regardless of
// the count, which is how the source engine's local map join work shows up.
//
// The heuristic comes from the source engine's planner without a documented
// correctness argument, it must not be extended to other operator pair.
func positionalMatch(leaf, root *Operator) bool {
	countL := sql.CountPlaceholder(leaf.SchemaString())
	countR := sql.CountPlaceholder(root.SchemaString())
	if countL == countR {
		return true
	}
	return leaf.Kind == KindHashTableSink &&
		leaf.IsLeaf() &&
		root.Kind == KindTableScan
}

func (self *assembler) stitch(cur, next *Stage) error {
	leaves := self.leaves(cur)
	roots := self.tops(next)

	for _, root := range roots {
		linked := false
		for _, leaf := range leaves {
			if leaf.ID == root.ID {
				continue
			}
			if leaf.Schema.Equal(root.Schema) {
				if err := self.link(leaf, root, EdgeBoundary); err != nil {
					return err
				}
				linked = true
			}
		}

		if linked || !sql.HasPlaceholder(root.SchemaString()) {
			continue
		}

		for _, leaf := range leaves {
			if leaf.ID == root.ID || leaf.Schema == nil {
				continue
			}
			if positionalMatch(leaf, root) {
				if err := self.link(leaf, root, EdgeBoundaryPositional); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// map join relinking

// BuildOperatorID returns the id of the hash table sink feeding the probe
// placeholder, ie HASHTABLEDUMMY_2 is fed by HASHTABLESINK_1.
func BuildOperatorID(placeholder string) (string, bool) {
	prefix, n, ok := SplitID(placeholder)
	if !ok || n < 1 || prefix != KindHashTableDummy.Prefix() {
		return "", false
	}
	return MakeID(KindHashTableSink, n-1), true
}

func (self *assembler) relinkMapJoin() error {
	for _, op := range self.g.Nodes() {
		if op.Kind != KindMapJoin {
			continue
		}

		for _, p := range self.g.Parents(op) {
			if p.Kind != KindHashTableDummy {
				continue
			}
			id, ok := BuildOperatorID(p.ID)
			if !ok {
				return NewError(
					ErrMalformedPlanGraph,
					"relink-map-join",
					p.ID,
					"cannot decode the ordinal of hash table placeholder of %s",
					op.ID,
				)
			}
			build, ok := self.g.Node(id)
			if !ok || build.Kind != KindHashTableSink {
				return NewError(
					ErrMalformedPlanGraph,
					"relink-map-join",
					op.ID,
					"hash table sink %s for placeholder %s is not found",
					id,
					p.ID,
				)
			}
			if err := self.g.Link(build, op, EdgeMapJoin); err != nil {
				return err
			}
			level.Debug(self.logger).Log(
				"msg", "map join relinked",
				"mapjoin", op.ID,
				"placeholder", p.ID,
				"build", build.ID,
			)
		}
	}
	return nil
}
