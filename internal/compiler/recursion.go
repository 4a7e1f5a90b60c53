package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/lemma/internal/ir"
)

// RecursionWarning reports a group of rules that can feed each other.
//
// Recursion is legal (transitive closure needs it) and the materializer
// bounds it by rounds. The warning exists so authors notice unintended loops.
type RecursionWarning struct {
	Path    []string `json:"path"` // e.g. ["a", "b", "a"]
	Message string   `json:"message"`
	Level   string   `json:"level"` // "info" for self-recursion, "warning" otherwise
}

// AnalyzeRecursion builds the rule dependency graph of p and reports every
// strongly connected component that forms a cycle.
//
// Rule A depends on rule B when B's head can unify with one of A's body
// patterns: each position is either a variable on one side or the same bound
// node on both.
func AnalyzeRecursion(p *ir.Program) []RecursionWarning {
	if len(p.Rules) == 0 {
		return []RecursionWarning{}
	}

	graph := buildRuleGraph(p.Rules)
	order := make(map[string]int, len(p.Rules))
	for i, r := range p.Rules {
		order[r.Name] = i
	}

	warnings := []RecursionWarning{}
	for _, scc := range tarjanSCC(graph, p.RuleNames()) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		sort.Slice(scc, func(i, j int) bool { return order[scc[i]] < order[scc[j]] })
		warnings = append(warnings, sccToWarning(scc, graph))
	}
	sort.Slice(warnings, func(i, j int) bool {
		return order[warnings[i].Path[0]] < order[warnings[j].Path[0]]
	})
	return warnings
}

// ruleGraph maps rule name -> rules whose bodies its head can feed.
type ruleGraph map[string][]string

func buildRuleGraph(rules []ir.Rule) ruleGraph {
	graph := make(ruleGraph, len(rules))
	for _, producer := range rules {
		graph[producer.Name] = []string{}
		for _, consumer := range rules {
			for _, p := range consumer.Body {
				if unifiable(producer.Head, p) {
					graph[producer.Name] = append(graph[producer.Name], consumer.Name)
					break
				}
			}
		}
	}
	return graph
}

func unifiable(a, b ir.Pattern) bool {
	fa, fb := a.Fields(), b.Fields()
	for i := range fa {
		if !fa[i].IsBound() || !fb[i].IsBound() {
			continue
		}
		if fa[i].Node() != fb[i].Node() {
			return false
		}
	}
	return true
}

func hasSelfLoop(node string, graph ruleGraph) bool {
	for _, n := range graph[node] {
		if n == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Nodes are visited in the
// given order so results are deterministic.
func tarjanSCC(graph ruleGraph, nodes []string) [][]string {
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

		for _, w := range graph[v] {
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

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph ruleGraph) RecursionWarning {
	if len(scc) == 1 {
		name := scc[0]
		return RecursionWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("rule %s is self-recursive", name),
			Level:   "info",
		}
	}
	path := cyclePath(scc, graph)
	return RecursionWarning{
		Path:    path,
		Message: fmt.Sprintf("mutually recursive rules: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// cyclePath walks from the first SCC member along edges inside the SCC until
// it returns to the start.
func cyclePath(scc []string, graph ruleGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := map[string]bool{}
	for {
		visited[current] = true
		next := ""
		for _, n := range graph[current] {
			if members[n] && n != current && (!visited[n] || n == start) {
				next = n
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
