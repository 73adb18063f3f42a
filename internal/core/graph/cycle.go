package graph

// HasCycle detects any directed cycle between nodes using DFS with coloring.
func (g *Graph) HasCycle() bool {
	const (
		white = 0 // unvisited
		gray  = 1 // visiting
		black = 2 // visited
	)
	color := make(map[string]int, len(g.Nodes))
	adj := g.adjacency()
	var dfs func(string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range adj[u] {
			if color[v] == gray {
				return true // back-edge
			}
			if color[v] == white && dfs(v) {
				return true
			}
		}
		color[u] = black
		return false
	}
	for _, n := range g.Nodes {
		if color[n.ID] == white && dfs(n.ID) {
			return true
		}
	}
	return false
}

// Reaches reports whether a directed path leads from node from to node to.
// A node always reaches itself.
func (g *Graph) Reaches(from, to string) bool {
	if from == to {
		return true
	}
	adj := g.adjacency()
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, v := range adj[u] {
			if v == to {
				return true
			}
			if !visited[v] {
				visited[v] = true
				stack = append(stack, v)
			}
		}
	}
	return false
}

func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.SourceNode()] = append(adj[e.SourceNode()], e.TargetNode())
	}
	return adj
}
