// SPDX-License-Identifier: MPL-2.0

// Package dag orders nodes of a directed graph and detects cycles. The host
// uses it to boot plugins so that every exporter is active before the
// plugins importing from it.
package dag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is the sentinel error wrapped by CycleError.
var ErrCycle = errors.New("dependency cycle")

type (
	// CycleError lists the nodes left unordered because they sit on or behind a cycle.
	CycleError struct {
		Cycle []string
	}

	// Graph is a directed graph keyed by string. An edge from A to B means A
	// must come before B. Nodes keep their insertion order, which breaks ties
	// between nodes of the same level.
	Graph struct {
		adjacency map[string][]string
		edges     map[[2]string]struct{}
		nodes     []string
		nodeSet   map[string]struct{}
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCycle so callers can use errors.Is for programmatic detection.
func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		edges:     make(map[[2]string]struct{}),
		nodeSet:   make(map[string]struct{}),
	}
}

// AddNode adds a node; existing nodes keep their position.
func (g *Graph) AddNode(name string) {
	if _, ok := g.nodeSet[name]; ok {
		return
	}
	g.nodeSet[name] = struct{}{}
	g.nodes = append(g.nodes, name)
}

// AddEdge records that from must come before to. Repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	e := [2]string{from, to}
	if _, ok := g.edges[e]; ok {
		return
	}
	g.edges[e] = struct{}{}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// TopologicalSort flattens Levels into one order.
func (g *Graph) TopologicalSort() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, level := range levels {
		out = append(out, level...)
	}
	return out, nil
}

// Levels groups nodes into layers using Kahn's algorithm. Every edge points
// from an earlier layer to a later one, so the nodes inside one layer are
// independent of each other. Within a layer nodes keep insertion order.
func (g *Graph) Levels() ([][]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, n := range neighbors {
			inDegree[n]++
		}
	}

	var current []string
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			current = append(current, node)
		}
	}

	var (
		levels [][]string
		placed int
	)
	for len(current) > 0 {
		levels = append(levels, current)
		placed += len(current)

		ready := make(map[string]struct{})
		for _, node := range current {
			for _, n := range g.adjacency[node] {
				inDegree[n]--
				if inDegree[n] == 0 {
					ready[n] = struct{}{}
				}
			}
		}
		var next []string
		for _, node := range g.nodes {
			if _, ok := ready[node]; ok {
				next = append(next, node)
			}
		}
		current = next
	}

	if placed != len(g.nodes) {
		var cycle []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cycle = append(cycle, node)
			}
		}
		return nil, &CycleError{Cycle: cycle}
	}
	return levels, nil
}
