package resolve

// Clustering algorithm names accepted in configuration.
const (
	AlgorithmThreshold = "threshold"
	AlgorithmDBSCAN    = "dbscan"
)

// clusterThreshold partitions indices [0,n) into connected components
// of the undirected graph with an edge wherever similarity >= threshold.
// Every index lands in exactly one cluster; singletons are clusters of
// size one.
func clusterThreshold(matrix [][]float64, threshold float64) [][]int {
	n := len(matrix)
	visited := make([]bool, n)
	var clusters [][]int

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		// Iterative depth-first traversal of the component.
		var component []int
		stack := []int{i}
		visited[i] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, cur)
			for j := 0; j < n; j++ {
				if !visited[j] && matrix[cur][j] >= threshold {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}
		clusters = append(clusters, component)
	}
	return clusters
}

// clusterDBSCAN runs density-based clustering over the similarity
// matrix with eps = threshold. Neighbourhoods include the point itself,
// so minPts = 1 reduces to connected components. Points that never
// reach a core point become singleton clusters rather than being
// discarded as noise, preserving the every-index-in-one-cluster
// partition property.
func clusterDBSCAN(matrix [][]float64, eps float64, minPts int) [][]int {
	if minPts <= 1 {
		return clusterThreshold(matrix, eps)
	}

	n := len(matrix)
	const (
		unassigned = -1
		noise      = -2
	)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unassigned
	}

	neighbours := func(p int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if matrix[p][j] >= eps {
				out = append(out, j)
			}
		}
		return out
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != unassigned {
			continue
		}
		seeds := neighbours(i)
		if len(seeds) < minPts {
			labels[i] = noise
			continue
		}
		labels[i] = clusterID
		for k := 0; k < len(seeds); k++ {
			q := seeds[k]
			if labels[q] == noise {
				labels[q] = clusterID
			}
			if labels[q] != unassigned {
				continue
			}
			labels[q] = clusterID
			if qn := neighbours(q); len(qn) >= minPts {
				seeds = append(seeds, qn...)
			}
		}
		clusterID++
	}

	clusters := make([][]int, clusterID)
	var singletons [][]int
	for i, label := range labels {
		if label >= 0 {
			clusters[label] = append(clusters[label], i)
		} else {
			singletons = append(singletons, []int{i})
		}
	}
	return append(clusters, singletons...)
}
