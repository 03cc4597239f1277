package planfile

import (
	"github.com/dianpeng/plan2sql/cg"
	"github.com/dianpeng/plan2sql/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
)

const testDir = "./testdata"

func TestParseSchema(t *testing.T) {
	assert := assert.New(t)
	{
		s, err := ParseSchema("(_col0: int, _col1: decimal(10,2), m: map<string,int>)")
		assert.Nil(err)
		assert.Equal(
			plan.Schema{
				{Name: "_col0", Type: "int"},
				{Name: "_col1", Type: "decimal(10,2)"},
				{Name: "m", Type: "map<string,int>"},
			},
			s,
		)
	}
	{
		s, err := ParseSchema("()")
		assert.Nil(err)
		assert.Equal(0, len(s))
		assert.NotNil(s)
	}
	{
		_, err := ParseSchema("(a int)")
		assert.NotNil(err)
	}
	{
		_, err := ParseSchema("(: int)")
		assert.NotNil(err)
	}
}

func TestParse(t *testing.T) {
	assert := assert.New(t)
	f, err := Parse([]byte(`
stages:
  - id: Stage-1
    tops: [TS_0]
    operators:
      - id: TS_0
        table: {alias: t, database: db, name: orders}
        schema: "(a: int)"
        children: [LIM_1]
      - id: LIM_1
        limit: 3
        schema: [{name: a, type: int}]
        children: [FS_2]
      - id: FS_2
`))
	require.Nil(t, err)
	assert.Equal(1, len(f.Stages))

	roots, err := f.Build()
	require.Nil(t, err)
	assert.Equal(1, len(roots))

	s := roots[0]
	assert.Equal([]string{"TS_0"}, s.Tops)

	ts, ok := s.Operator("TS_0")
	assert.True(ok)
	assert.Equal(plan.KindTableScan, ts.Kind)
	assert.Equal("db.orders", ts.Table.QualifiedName())
	assert.Equal([]string{"LIM_1"}, ts.Children)

	lim, _ := s.Operator("LIM_1")
	assert.Equal(int64(3), lim.Limit)
	assert.Equal([]string{"TS_0"}, lim.Parents)
	assert.Equal("(a: int)", lim.SchemaString())

	fs, _ := s.Operator("FS_2")
	assert.Nil(fs.Schema)
}

func TestBuildError(t *testing.T) {
	assert := assert.New(t)
	one := func(doc string) {
		f, err := Parse([]byte(doc))
		if err == nil {
			_, err = f.Build()
		}
		assert.NotNil(err, doc)
	}

	one(`stages: [{id: Stage-1, tops: [TS_0]}]`)
	one(`stages: [{id: Stage-1, dependents: [Stage-9]}]`)
	one(`stages: [{id: Stage-1}, {id: Stage-1}]`)
	one(`stages: [{id: Stage-1, operators: [{id: WHAT_0}]}]`)
	one(`stages: [{id: Stage-1, operators: [{id: X_0, kind: Sort}]}]`)
	one(`stages: [{id: Stage-1, operators: [{id: LIM_0}]}]`)
	one(`stages: [{id: Stage-1, operators: [{id: TS_0}, {id: TS_0}]}]`)
	one(`stages: [{id: Stage-1, operators: [{id: TS_0, schema: 12}]}]`)
	one(`roots: [Stage-2]
stages: [{id: Stage-1}]`)
	one(`stages: [: bad`)
}

func TestLoadMissing(t *testing.T) {
	assert := assert.New(t)
	_, err := Load(filepath.Join(testDir, "nope.yaml"))
	assert.NotNil(err)
	assert.Contains(err.Error(), "nope.yaml")
}

func TestConditionalRoot(t *testing.T) {
	assert := assert.New(t)
	roots, err := LoadStages(filepath.Join(testDir, "mapjoin.yaml"))
	require.Nil(t, err)
	assert.Equal(1, len(roots))
	assert.Equal("Stage-6", roots[0].ID)
	assert.True(roots[0].Conditional)
	assert.Equal(2, len(roots[0].Branches))

	p, err := plan.Build(roots, nil)
	require.Nil(t, err)
	assert.Equal([]string{"Stage-7", "Stage-5", "Stage-0"}, p.StageID())

	_, ok := p.Graph.Node("TS_10")
	assert.False(ok)
	assert.True(p.Graph.HasEdge("HASHTABLESINK_1", "MAPJOIN_4"))
	assert.True(p.Graph.HasEdge("FS_5", "LIST_SINK_9"))
}

// plan file to SQL
func TestTranslate(t *testing.T) {
	assert := assert.New(t)
	one := func(name string, expect []string) {
		roots, err := LoadStages(filepath.Join(testDir, name))
		require.Nil(t, err, name)
		stmt, err := cg.Translate(roots, nil)
		assert.Nil(err, name)
		assert.Equal(expect, stmt, name)
	}

	one("minimal.json", []string{
		"SELECT t.a FROM t WHERE t.a > 5",
	})

	one("shuffle.yaml", []string{
		"CREATE TABLE RS_2 AS (SELECT t.a AS KEY__col0, count(t.b) AS VALUE__col0 FROM t GROUP BY t.a)",
		"CREATE TABLE GBY_3 AS (SELECT RS_2.KEY__col0 AS _col0, sum(RS_2.VALUE__col0) AS _col1 FROM RS_2 GROUP BY RS_2.KEY__col0)",
	})

	one("mapjoin.yaml", []string{
		"SELECT t.k, t.x, s.v FROM t JOIN s ON t.k = s.k",
	})
}
