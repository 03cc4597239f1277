package plan

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Planner configuration. Used to customize planner behavior
type Config struct {
	Logger log.Logger
}

// Plan is the result of replaying the source engine's stages, the simplified
// stage list and the global operator graph assembled from it. The graph is
// read only once the plan is built.
type Plan struct {
	Config Config
	Stages []*Stage // simplified stage list, in execution order
	Graph  *Graph
}

func newPlan(config *Config) *Plan {
	p := &Plan{}
	if config != nil {
		p.Config = *config
	}
	if p.Config.Logger == nil {
		p.Config.Logger = log.NewNopLogger()
	}
	return p
}

// Build simplifies the stage DAG rooted at roots and assembles the global
// operator graph out of it.
func Build(roots []*Stage, config *Config) (*Plan, error) {
	p := newPlan(config)

	stages, err := Simplify(roots, p.Config.Logger)
	if err != nil {
		return nil, err
	}
	p.Stages = stages

	g, err := Assemble(stages, p.Config.Logger)
	if err != nil {
		return nil, err
	}
	p.Graph = g

	level.Debug(p.Config.Logger).Log("msg", "plan built", "stages", len(p.Stages))
	return p, nil
}

func (self *Plan) StageID() []string {
	out := []string{}
	for _, s := range self.Stages {
		out = append(out, s.ID)
	}
	return out
}
