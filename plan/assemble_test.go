package plan

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func opWith(id string, schema Schema) *Operator {
	o := mkop(id)
	o.Schema = schema
	return o
}

func cols(x ...string) Schema {
	out := Schema{}
	for i := 0; i+1 < len(x); i += 2 {
		out = append(out, Column{Name: x[i], Type: x[i+1]})
	}
	return out
}

func TestAssembleIntraStage(t *testing.T) {
	assert := assert.New(t)
	s := NewStage("Stage-1")
	ts := opWith("TS_0", cols("a", "int"))
	ts.Table = &Table{Alias: "t", Columns: cols("a", "int")}
	s.AddTop(ts)
	s.AddOperator(opWith("FIL_1", cols("a", "int")))
	s.AddOperator(opWith("FS_2", cols("a", "int")))
	s.Connect("TS_0", "FIL_1")
	s.Connect("FIL_1", "FS_2")

	g, err := Assemble([]*Stage{s}, nil)
	assert.Nil(err)
	assert.Equal(3, g.NodeSize())
	assert.Equal(2, g.EdgeSize())

	e, ok := g.EdgeOf("TS_0", "FIL_1")
	assert.True(ok)
	assert.Equal(EdgeStage, e.Label)

	// base columns are published by the scan
	assert.Equal("int", g.Sources.Type("t.a"))
	key, ok := g.Sources.Lookup("TS_0", "a")
	assert.True(ok)
	assert.Equal("t.a", key)
	assert.True(g.Alias.BoundBy("t", "TS_0"))
}

// a child declared in a later stage is linked once all stages are known
func TestAssembleCrossStageChild(t *testing.T) {
	assert := assert.New(t)

	s1 := NewStage("Stage-1")
	ts := s1.AddTop(opWith("TS_0", cols("a", "int")))
	ts.Table = &Table{Alias: "t", Columns: cols("a", "int")}
	rs := s1.AddOperator(opWith("RS_1", cols("KEY._col0", "int")))
	s1.Connect("TS_0", "RS_1")
	rs.Children = []string{"GBY_2"}

	s2 := NewStage("Stage-2")
	gby := s2.AddTop(opWith("GBY_2", cols("_col0", "int")))
	s2.AddOperator(opWith("FS_3", cols("_col0", "int")))
	s2.Connect("GBY_2", "FS_3")

	g, err := Assemble([]*Stage{s1, s2}, nil)
	assert.Nil(err)

	e, ok := g.EdgeOf("RS_1", "GBY_2")
	assert.True(ok)
	assert.Equal(EdgeStage, e.Label)
	assert.Equal([]string{"RS_1"}, gby.Parents)
	assert.Equal(1, len(g.Roots()))
	assert.Equal("TS_0", g.Roots()[0].ID)
	assert.Equal(1, len(g.Leaves()))
	assert.Equal("FS_3", g.Leaves()[0].ID)

	// the same child missing from every stage
	{
		s1 := NewStage("Stage-1")
		ts := s1.AddTop(opWith("TS_0", nil))
		ts.Table = &Table{Alias: "t"}
		ts.Children = []string{"GBY_7"}

		s2 := NewStage("Stage-2")
		s2.AddTop(opWith("GBY_2", nil))

		_, err := Assemble([]*Stage{s1, s2}, nil)
		assert.ErrorIs(err, ErrMalformedPlanGraph)
		e, ok := AsError(err)
		assert.True(ok)
		assert.Equal("TS_0", e.Node)
		assert.Equal("Stage-1", e.Stage)
	}
}

func TestAssembleMissingChild(t *testing.T) {
	assert := assert.New(t)
	s := NewStage("Stage-1")
	ts := s.AddTop(opWith("TS_0", nil))
	ts.Table = &Table{Alias: "t"}
	ts.Children = []string{"SEL_9"}

	_, err := Assemble([]*Stage{s}, nil)
	assert.ErrorIs(err, ErrMalformedPlanGraph)
}

func TestAssembleStitch(t *testing.T) {
	assert := assert.New(t)

	// textual schema equality
	{
		s1 := NewStage("Stage-1")
		ts := s1.AddTop(opWith("TS_0", cols("a", "int")))
		ts.Table = &Table{Alias: "t"}
		s1.AddOperator(opWith("FS_1", cols("a", "int")))
		s1.Connect("TS_0", "FS_1")

		s2 := NewStage("Stage-2")
		s2.AddTop(opWith("TS_2", cols("a", "int")))

		g, err := Assemble([]*Stage{s1, s2}, nil)
		assert.Nil(err)
		e, ok := g.EdgeOf("FS_1", "TS_2")
		assert.True(ok)
		assert.Equal(EdgeBoundary, e.Label)
	}

	// same number of generated column name
	{
		s1 := NewStage("Stage-1")
		ts := s1.AddTop(opWith("TS_0", cols("a", "int")))
		ts.Table = &Table{Alias: "t"}
		s1.AddOperator(opWith("RS_1", cols("KEY._col0", "int", "VALUE._col0", "int")))
		s1.Connect("TS_0", "RS_1")

		s2 := NewStage("Stage-2")
		s2.AddTop(opWith("GBY_2", cols("_col0", "int", "_col1", "bigint")))

		g, err := Assemble([]*Stage{s1, s2}, nil)
		assert.Nil(err)
		e, ok := g.EdgeOf("RS_1", "GBY_2")
		assert.True(ok)
		assert.Equal(EdgeBoundaryPositional, e.Label)
	}

	// different count, no link
	{
		s1 := NewStage("Stage-1")
		ts := s1.AddTop(opWith("TS_0", cols("a", "int")))
		ts.Table = &Table{Alias: "t"}
		s1.AddOperator(opWith("RS_1", cols("KEY._col0", "int")))
		s1.Connect("TS_0", "RS_1")

		s2 := NewStage("Stage-2")
		s2.AddTop(opWith("GBY_2", cols("_col0", "int", "_col1", "bigint")))

		g, err := Assemble([]*Stage{s1, s2}, nil)
		assert.Nil(err)
		assert.False(g.HasEdge("RS_1", "GBY_2"))
	}

	// a hash table sink feeds a table scan whatever the count
	{
		s1 := NewStage("Stage-1")
		ts := s1.AddTop(opWith("TS_0", cols("a", "int")))
		ts.Table = &Table{Alias: "t"}
		s1.AddOperator(opWith("HASHTABLESINK_1", cols("_col0", "int")))
		s1.Connect("TS_0", "HASHTABLESINK_1")

		s2 := NewStage("Stage-2")
		s2.AddTop(opWith("TS_2", cols("_col0", "int", "_col1", "int")))

		g, err := Assemble([]*Stage{s1, s2}, nil)
		assert.Nil(err)
		e, ok := g.EdgeOf("HASHTABLESINK_1", "TS_2")
		assert.True(ok)
		assert.Equal(EdgeBoundaryPositional, e.Label)
	}

	// the exception does not extend to other operator pair
	{
		s1 := NewStage("Stage-1")
		ts := s1.AddTop(opWith("TS_0", cols("a", "int")))
		ts.Table = &Table{Alias: "t"}
		s1.AddOperator(opWith("HASHTABLESINK_1", cols("_col0", "int")))
		s1.Connect("TS_0", "HASHTABLESINK_1")

		s2 := NewStage("Stage-2")
		s2.AddTop(opWith("SEL_2", cols("_col0", "int", "_col1", "int")))

		g, err := Assemble([]*Stage{s1, s2}, nil)
		assert.Nil(err)
		assert.False(g.HasEdge("HASHTABLESINK_1", "SEL_2"))
	}
}

func TestAssembleMapJoin(t *testing.T) {
	assert := assert.New(t)

	local := NewStage("Stage-4")
	ts := local.AddTop(opWith("TS_0", cols("k", "int")))
	ts.Table = &Table{Alias: "s"}
	local.AddOperator(opWith("HASHTABLESINK_1", cols("k", "int")))
	local.Connect("TS_0", "HASHTABLESINK_1")

	probe := NewStage("Stage-3")
	pts := probe.AddTop(opWith("TS_3", cols("k", "int", "x", "int")))
	pts.Table = &Table{Alias: "t"}
	probe.AddTop(opWith("HASHTABLEDUMMY_2", nil))
	probe.AddOperator(opWith("MAPJOIN_4", nil))
	probe.Connect("TS_3", "MAPJOIN_4")
	probe.Connect("HASHTABLEDUMMY_2", "MAPJOIN_4")

	g, err := Assemble([]*Stage{local, probe}, nil)
	assert.Nil(err)

	e, ok := g.EdgeOf("HASHTABLESINK_1", "MAPJOIN_4")
	assert.True(ok)
	assert.Equal(EdgeMapJoin, e.Label)

	mj, _ := g.Node("MAPJOIN_4")
	assert.Equal([]string{"TS_3", "HASHTABLEDUMMY_2", "HASHTABLESINK_1"}, mj.Parents)

	// missing build side
	{
		probe := NewStage("Stage-3")
		pts := probe.AddTop(opWith("TS_3", cols("k", "int")))
		pts.Table = &Table{Alias: "t"}
		probe.AddTop(opWith("HASHTABLEDUMMY_7", nil))
		probe.AddOperator(opWith("MAPJOIN_4", nil))
		probe.Connect("TS_3", "MAPJOIN_4")
		probe.Connect("HASHTABLEDUMMY_7", "MAPJOIN_4")

		_, err := Assemble([]*Stage{probe}, nil)
		assert.ErrorIs(err, ErrMalformedPlanGraph)
	}
}

func TestBuildOperatorID(t *testing.T) {
	assert := assert.New(t)
	{
		id, ok := BuildOperatorID("HASHTABLEDUMMY_2")
		assert.True(ok)
		assert.Equal("HASHTABLESINK_1", id)
	}
	{
		_, ok := BuildOperatorID("HASHTABLEDUMMY_0")
		assert.False(ok)
	}
	{
		_, ok := BuildOperatorID("TS_2")
		assert.False(ok)
	}
}

func TestAssembleAliasClash(t *testing.T) {
	assert := assert.New(t)
	s := NewStage("Stage-1")
	a := s.AddTop(opWith("TS_0", nil))
	a.Table = &Table{Alias: "t", Name: "orders"}
	b := s.AddTop(opWith("TS_1", nil))
	b.Table = &Table{Alias: "t", Name: "users"}

	_, err := Assemble([]*Stage{s}, nil)
	assert.ErrorIs(err, ErrMalformedPlanGraph)
}

func TestBuild(t *testing.T) {
	assert := assert.New(t)
	s1 := NewStage("Stage-1")
	ts := s1.AddTop(opWith("TS_0", cols("a", "int")))
	ts.Table = &Table{Alias: "t"}
	s1.AddOperator(opWith("FS_1", cols("a", "int")))
	s1.Connect("TS_0", "FS_1")

	p, err := Build([]*Stage{s1}, nil)
	assert.Nil(err)
	assert.Equal([]string{"Stage-1"}, p.StageID())
	assert.Equal(2, p.Graph.NodeSize())
	assert.Contains(p.Print(), "Stage-1")
}
