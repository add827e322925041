package matcher

import (
	"container/heap"
	"math"
	"math/rand"
)

// Node is one node of a randomized projection tree. Fields are exported so
// the forest survives gob serialization.
type Node struct {
	Leaf       bool
	Indices    []int32
	Hyperplane []float32
	Threshold  float32
	Left       *Node
	Right      *Node
}

// buildForest grows numTrees randomized trees over the aggregated descriptor
// matrix. The rng is seeded by the caller, so the same reference set always
// produces the same forest.
func buildForest(vectors [][]float32, numTrees, maxLeafSize int, rng *rand.Rand) []*Node {
	indices := make([]int32, len(vectors))
	for i := range indices {
		indices[i] = int32(i)
	}

	trees := make([]*Node, numTrees)
	for t := 0; t < numTrees; t++ {
		trees[t] = buildNode(indices, vectors, maxLeafSize, rng)
	}
	return trees
}

func buildNode(indices []int32, vectors [][]float32, maxLeafSize int, rng *rand.Rand) *Node {
	if len(indices) <= maxLeafSize {
		leaf := make([]int32, len(indices))
		copy(leaf, indices)
		return &Node{Leaf: true, Indices: leaf}
	}

	// Two random points define the splitting hyperplane.
	aIdx := indices[rng.Intn(len(indices))]
	bIdx := indices[rng.Intn(len(indices))]
	if aIdx == bIdx && len(indices) > 1 {
		bIdx = indices[(rng.Intn(len(indices)-1)+1)%len(indices)]
	}

	vecA := vectors[aIdx]
	vecB := vectors[bIdx]
	dim := len(vecA)
	normal := make([]float32, dim)
	for i := 0; i < dim; i++ {
		normal[i] = vecB[i] - vecA[i]
	}

	// Identical sample points leave no direction; pick a random one.
	if magnitude(normal) == 0 {
		for i := range normal {
			normal[i] = rng.Float32()*2 - 1
		}
	}
	normalize(normal)

	mid := make([]float32, dim)
	for i := 0; i < dim; i++ {
		mid[i] = (vecA[i] + vecB[i]) * 0.5
	}
	threshold := dot(normal, mid)

	left := make([]int32, 0, len(indices)/2)
	right := make([]int32, 0, len(indices)/2)
	for _, idx := range indices {
		if dot(normal, vectors[idx]) <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	// Degenerate split, stop here.
	if len(left) == 0 || len(right) == 0 {
		leaf := make([]int32, len(indices))
		copy(leaf, indices)
		return &Node{Leaf: true, Indices: leaf}
	}

	return &Node{
		Hyperplane: normal,
		Threshold:  threshold,
		Left:       buildNode(left, vectors, maxLeafSize, rng),
		Right:      buildNode(right, vectors, maxLeafSize, rng),
	}
}

// collectCandidates walks all trees best-first under a shared leaf-visit
// budget and returns the union of candidate descriptor positions.
func collectCandidates(trees []*Node, query []float32, checks int) []int32 {
	seen := make(map[int32]struct{})
	pq := make(nodeQueue, len(trees))
	for i, tree := range trees {
		pq[i] = nodeEntry{node: tree}
	}
	heap.Init(&pq)

	visits := 0
	for pq.Len() > 0 && visits < checks {
		entry := heap.Pop(&pq).(nodeEntry)
		n := entry.node
		if n == nil {
			continue
		}
		if n.Leaf {
			visits++
			for _, idx := range n.Indices {
				seen[idx] = struct{}{}
			}
			continue
		}
		diff := dot(n.Hyperplane, query) - n.Threshold
		near, far := n.Left, n.Right
		if diff > 0 {
			near, far = n.Right, n.Left
		}
		priority := float32(math.Abs(float64(diff)))
		heap.Push(&pq, nodeEntry{node: near, priority: priority})
		heap.Push(&pq, nodeEntry{node: far, priority: priority + 1e-6})
	}

	out := make([]int32, 0, len(seen))
	for cand := range seen {
		out = append(out, cand)
	}
	return out
}

func magnitude(vec []float32) float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum))
}

func normalize(vec []float32) {
	mag := magnitude(vec)
	if mag == 0 {
		return
	}
	for i := range vec {
		vec[i] /= mag
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

type nodeEntry struct {
	node     *Node
	priority float32
}

type nodeQueue []nodeEntry

func (h nodeQueue) Len() int           { return len(h) }
func (h nodeQueue) Less(i, j int) bool { return h[i].priority < h[j].priority }
func (h nodeQueue) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *nodeQueue) Push(x interface{}) {
	*h = append(*h, x.(nodeEntry))
}

func (h *nodeQueue) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
