package plan

// The following documentation is used to describe how the physical plan of
// the source engine is modeled before being mapped back to SQL.
//
// The source engine hands us a forest of stages. Each stage runs a tree of
// physical operator, and the stages are connected by dependency edges, most
// of the time one edge per shuffle/exchange boundary. Column names have been
// anonymized by the source engine into positional alias, ie _col0, _col1, so
// the names only make sense relative to the operator emitting them.
//
// 1) Simplify
//    A conditional stage holds several candidate branches, the branch with
//    the smallest number of top operators is kept and replaces the
//    conditional stage in the DAG, everything else is banned. The result is
//    a linear list of stage, parents before children.
//
// 2) Assemble
//    Each stage's operator tree is merged into one Graph. The stage
//    boundary, ie a sink in one stage and the source of the next one, has no
//    operator level edge in the source engine, it is stitched back by
//    comparing schemas. The map join's build side, a hash table sink living
//    in another stage, is relinked to the map join by decoding the ordinal of
//    the probe side placeholder, HASHTABLEDUMMY_<n> is fed by
//    HASHTABLESINK_<n-1>.
//
// 3) Reconstruct, see package cg
//    The graph is walked backward from the terminal sink and SQL is
//    generated outside-in.
//
// The operator is stored once, inside of the Graph, keyed by its id. Parent
// and child are id reference into that arena.
