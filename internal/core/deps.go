package core

import "fmt"

// DepGraph tracks directed dependency edges between tasks and gates
// dispatch. It is mutated only by the scheduler's control loop and
// enforces acyclicity at insertion time.
type DepGraph struct {
	// deps maps a dependent task to its ordered upstream edges.
	deps map[string][]Dependency
	// dependents maps an upstream task to the tasks waiting on it.
	dependents map[string][]string
}

func NewDepGraph() *DepGraph {
	return &DepGraph{
		deps:       make(map[string][]Dependency),
		dependents: make(map[string][]string),
	}
}

// AddEdge records that dependent waits on upstream with the given
// relation. It fails without modifying the graph if the edge is a
// self-loop or would close a cycle.
func (g *DepGraph) AddEdge(upstream, dependent string, rel Relation) error {
	if upstream == dependent {
		return fmt.Errorf("%w: %s", ErrSelfDependency, upstream)
	}
	// The new edge orders upstream before dependent; a cycle exists iff
	// upstream is already reachable downstream of dependent.
	if g.reachable(dependent, upstream) {
		return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, upstream, dependent)
	}
	g.deps[dependent] = append(g.deps[dependent], Dependency{TaskID: upstream, Relation: rel})
	g.dependents[upstream] = append(g.dependents[upstream], dependent)
	return nil
}

// SetEdges replaces all edges of dependent atomically: either every edge
// is admitted or the graph is left unchanged.
func (g *DepGraph) SetEdges(dependent string, edges []Dependency) error {
	saved := g.snapshotFor(dependent)
	g.removeEdgesOf(dependent)
	for _, e := range edges {
		if err := g.AddEdge(e.TaskID, dependent, e.Relation); err != nil {
			g.removeEdgesOf(dependent)
			g.restoreFor(dependent, saved)
			return err
		}
	}
	return nil
}

// RemoveTask drops the task and every edge touching it. Dependents lose
// the edge but are otherwise untouched.
func (g *DepGraph) RemoveTask(id string) {
	g.removeEdgesOf(id)
	for _, dep := range g.dependents[id] {
		edges := g.deps[dep][:0]
		for _, e := range g.deps[dep] {
			if e.TaskID != id {
				edges = append(edges, e)
			}
		}
		if len(edges) == 0 {
			delete(g.deps, dep)
		} else {
			g.deps[dep] = edges
		}
	}
	delete(g.dependents, id)
}

// Dependencies returns the upstream edges of the given task.
func (g *DepGraph) Dependencies(id string) []Dependency {
	return g.deps[id]
}

// HasDependencies reports whether the task is gated at all.
func (g *DepGraph) HasDependencies(id string) bool {
	return len(g.deps[id]) > 0
}

// Ready reports whether every dependency edge of id is satisfied.
// outcome must return the upstream task's most recent outcome for the
// current scheduling cycle; returning ok=false means no fresh outcome
// exists and the edge is unsatisfied.
func (g *DepGraph) Ready(id string, outcome func(depID string) (Outcome, bool)) bool {
	for _, e := range g.deps[id] {
		o, ok := outcome(e.TaskID)
		if !ok {
			return false
		}
		switch e.Relation {
		case RelationOnSuccess:
			if o != OutcomeSuccess {
				return false
			}
		case RelationOnFailure:
			if o != OutcomeFailure {
				return false
			}
		case RelationOnCompletion:
			if !o.Terminal() {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// reachable walks dependent edges from start looking for target.
func (g *DepGraph) reachable(start, target string) bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		for _, next := range g.dependents[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func (g *DepGraph) removeEdgesOf(dependent string) {
	for _, e := range g.deps[dependent] {
		ups := g.dependents[e.TaskID][:0]
		for _, d := range g.dependents[e.TaskID] {
			if d != dependent {
				ups = append(ups, d)
			}
		}
		if len(ups) == 0 {
			delete(g.dependents, e.TaskID)
		} else {
			g.dependents[e.TaskID] = ups
		}
	}
	delete(g.deps, dependent)
}

func (g *DepGraph) snapshotFor(dependent string) []Dependency {
	return append([]Dependency(nil), g.deps[dependent]...)
}

func (g *DepGraph) restoreFor(dependent string, saved []Dependency) {
	for _, e := range saved {
		g.deps[dependent] = append(g.deps[dependent], e)
		g.dependents[e.TaskID] = append(g.dependents[e.TaskID], dependent)
	}
}
