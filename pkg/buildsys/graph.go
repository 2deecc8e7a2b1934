package buildsys

import (
	"container/heap"
)

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x interface{}) {
	*h = append(*h, x.(int))
}

func (h *intMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type evalGraph struct {
	nodes    []*Subproject
	outgoing [][]int
	indeg    []int
}

func newEvalGraph(subprojects []*Subproject) (*evalGraph, error) {
	g := &evalGraph{
		nodes:    subprojects,
		outgoing: make([][]int, len(subprojects)),
		indeg:    make([]int, len(subprojects)),
	}

	index := make(map[string]int, len(subprojects))
	for idx, sub := range subprojects {
		index[sub.Path] = idx
	}

	for idx, sub := range subprojects {
		for _, dep := range sub.EvaluationDeps {
			depIdx, ok := index[dep]
			if !ok {
				return nil, UndeclaredProjectError{From: sub.Path, Target: dep}
			}

			// the dependency has to be evaluated before sub
			g.outgoing[depIdx] = append(g.outgoing[depIdx], idx)
			g.indeg[idx]++
		}
	}

	return g, nil
}

// topoOrder returns a topological order of node indices. Ready nodes are picked in declaration order.
func (g *evalGraph) topoOrder() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle as a list of subproject paths where each entry depends on the next one
func (g *evalGraph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.nodes))
	var stack []int
	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)

		sub := g.nodes[u]
		for _, dep := range sub.EvaluationDeps {
			v := g.indexOf(dep)
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == v {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, v)
						return true
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			break
		}
	}

	result := make([]string, len(cycle))
	for idx, node := range cycle {
		result[idx] = g.nodes[node].Path
	}
	return result
}

func (g *evalGraph) indexOf(path string) int {
	for idx, sub := range g.nodes {
		if sub.Path == path {
			return idx
		}
	}
	return -1
}

// EvaluationOrder validates the evaluation dependencies of the given subprojects and returns their paths in
// an order where every subproject comes after the subprojects it depends on. Independent subprojects keep
// their declaration order.
func EvaluationOrder(subprojects []*Subproject) ([]string, error) {
	g, err := newEvalGraph(subprojects)
	if err != nil {
		return nil, err
	}

	order := g.topoOrder()
	if len(order) != len(subprojects) {
		return nil, CyclicEvaluationError{Cycle: g.findCycle()}
	}

	result := make([]string, len(order))
	for idx, node := range order {
		result[idx] = subprojects[node].Path
	}
	return result, nil
}
