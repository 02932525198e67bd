package kernel

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// pidNode adapts a pid to gonum's graph.Node, the same wrapping the
// teacher uses for its build-dependency graph nodes.
type pidNode int64

func (n pidNode) ID() int64 { return int64(n) }

// ownership is the PCB parent/child graph: an edge pid→child exists for
// every live parent/child relationship. It exists alongside the PCB's own
// Children slice so that recursive descendant collection (needed by TERM)
// can be expressed as a graph traversal rather than hand-rolled
// recursion, matching the teacher's use of gonum graph traversal for
// dependency-order walks.
type ownership struct {
	g *simple.DirectedGraph
}

func newOwnership() *ownership {
	return &ownership{g: simple.NewDirectedGraph()}
}

func (o *ownership) addProcess(pid int) {
	o.g.AddNode(pidNode(pid))
}

func (o *ownership) addEdge(parent, child int) {
	o.g.SetEdge(o.g.NewEdge(pidNode(parent), pidNode(child)))
}

func (o *ownership) removeProcess(pid int) {
	o.g.RemoveNode(int64(pid))
}

// descendants returns every pid reachable from pid by following
// parent→child edges, in a depth-first pre-order traversal (each child is
// listed before its own subtree), excluding pid itself. The order among
// siblings is the graph's iteration order, which is not defined.
func (o *ownership) descendants(pid int) []int {
	var out []int
	var visit func(int64)
	visit = func(id int64) {
		it := o.g.From(id)
		for it.Next() {
			child := it.Node().(pidNode)
			out = append(out, int(child))
			visit(int64(child))
		}
	}
	visit(int64(pid))
	return out
}

var _ graph.Directed = (*simple.DirectedGraph)(nil)
