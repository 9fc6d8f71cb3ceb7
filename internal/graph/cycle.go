package graph

import (
	"fmt"
	"strings"

	"github.com/sitehq/girder/model"
)

// adjacency maps predecessor task ID to its successor task IDs.
type adjacency map[string][]string

func buildAdjacency(deps []model.Dependency) adjacency {
	adj := make(adjacency, len(deps))
	for _, d := range deps {
		adj[d.PredecessorID] = append(adj[d.PredecessorID], d.SuccessorID)
	}
	return adj
}

// findCyclePath checks whether adding an edge from predecessor to successor
// would close a cycle, by searching for a path from successor back to
// predecessor through the existing edges. It returns the offending path in
// edge direction (predecessor first) or nil when the edge is safe.
func findCyclePath(adj adjacency, predecessorID, successorID string) []string {
	if predecessorID == successorID {
		return []string{predecessorID, successorID}
	}

	visited := make(map[string]bool)
	var path []string

	var visit func(node string) bool
	visit = func(node string) bool {
		if node == predecessorID {
			path = append(path, node)
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, next := range adj[node] {
			if visit(next) {
				path = append(path, node)
				return true
			}
		}
		return false
	}

	if !visit(successorID) {
		return nil
	}

	// The search collected nodes in reverse. Reorder so the path reads from
	// the new edge onward around the loop.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return append([]string{predecessorID}, path...)
}

func cycleError(path []string) error {
	return model.NewCircularDependencyError(
		fmt.Sprintf("dependency would create a cycle: %s", strings.Join(path, " -> ")))
}
