package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// InheritanceCycle is a set of schemas whose extends chain loops.
type InheritanceCycle struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// AnalyzeInheritance reports every extends cycle among the model's schemas.
//
// Strongly connected components of the extends graph are found with
// Tarjan's algorithm; components larger than one node, or a schema that
// extends itself, are cycles. Results are ordered by their first schema.
func AnalyzeInheritance(m *Model) []InheritanceCycle {
	g := buildExtendsGraph(m)
	if len(g) == 0 {
		return nil
	}

	var cycles []InheritanceCycle
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			cycles = append(cycles, sccToCycle(scc, g))
		}
	}
	slices.SortFunc(cycles, func(a, b InheritanceCycle) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

// extendsGraph maps a schema to the schema it extends.
type extendsGraph map[string][]string

func buildExtendsGraph(m *Model) extendsGraph {
	g := make(extendsGraph)
	add := func(name, extends string) {
		if g[name] == nil {
			g[name] = []string{}
		}
		if extends != "" {
			g[name] = append(g[name], extends)
		}
	}
	for _, e := range m.Entities {
		add(e.Name, e.Extends)
	}
	for _, r := range m.Relationships {
		add(r.Name, r.Extends)
	}
	return g
}

func hasSelfLoop(node string, g extendsGraph) bool {
	return slices.Contains(g[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(g extendsGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(g))
	for node := range g {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// sccToCycle walks the extends edges from the alphabetically first member
// of the component back to itself.
func sccToCycle(scc []string, g extendsGraph) InheritanceCycle {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)

	path := []string{start}
	for cur := start; ; {
		next := ""
		for _, w := range g[cur] {
			if members[w] {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start || len(path) > len(scc) {
			break
		}
		cur = next
	}

	return InheritanceCycle{
		Path:    path,
		Message: fmt.Sprintf("inheritance cycle: %s", strings.Join(path, " -> ")),
	}
}
