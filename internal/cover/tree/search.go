package tree

import (
	"container/heap"
	"math"
	"sort"
)

// NearestNeighbor returns the stored point closest to point using
// branch-and-bound descent from the root. Ties keep the first point found.
// It reports false for an empty tree or a point of the wrong dimension.
func (t *Tree) NearestNeighbor(point *Point) (*Point, float32, bool) {
	if t.size == 0 || point.Dim() != t.dim {
		return nil, 0, false
	}
	root, ok := t.levels.get(t.root)
	if !ok {
		return nil, 0, false
	}
	best := Neighbor{Point: root.point, Distance: t.distanceFunc(point, root.point)}
	t.nearestNeighbor(t.root, root, point, &best)
	return best.Point, best.Distance, true
}

type childDist struct {
	pos  Position
	node *Node
	dist float32
}

func (t *Tree) sortedChildren(pos Position, node *Node, point *Point) []childDist {
	cds := make([]childDist, 0, len(node.children))
	for _, index := range node.children {
		childPos := Position{Level: pos.Level - 1, Index: index}
		child, ok := t.levels.get(childPos)
		if !ok {
			continue
		}
		cds = append(cds, childDist{pos: childPos, node: child, dist: t.distanceFunc(point, child.point)})
	}
	sort.SliceStable(cds, func(i, j int) bool { return cds[i].dist < cds[j].dist })
	return cds
}

func (t *Tree) nearestNeighbor(pos Position, node *Node, point *Point, best *Neighbor) {
	for _, cd := range t.sortedChildren(pos, node, point) {
		if cd.dist < best.Distance {
			*best = Neighbor{Point: cd.node.point, Distance: cd.dist}
		}
		if cd.node.IsLeaf() || cd.dist-t.boundRadius(cd.pos, cd.node) > best.Distance {
			continue
		}
		t.nearestNeighbor(cd.pos, cd.node, point, best)
	}
}

// KNearestNeighbors runs a depth-first kNN search and returns up to k
// neighbors ordered by ascending distance.
func (t *Tree) KNearestNeighbors(point *Point, k int) []*Neighbor {
	if t.size == 0 || k <= 0 || point.Dim() != t.dim {
		return nil
	}
	root, ok := t.levels.get(t.root)
	if !ok {
		return nil
	}
	h := &Neighbors{}
	heap.Init(h)
	offer(h, k, Neighbor{Point: root.point, Distance: t.distanceFunc(point, root.point)})
	t.kNearestNeighbors(t.root, root, point, k, h)
	return drain(h)
}

func (t *Tree) kNearestNeighbors(pos Position, node *Node, point *Point, k int, h *Neighbors) {
	for _, cd := range t.sortedChildren(pos, node, point) {
		offer(h, k, Neighbor{Point: cd.node.point, Distance: cd.dist})
		if cd.node.IsLeaf() {
			continue
		}
		if h.Len() == k && cd.dist-t.boundRadius(cd.pos, cd.node) >= (*h)[0].Distance {
			continue
		}
		t.kNearestNeighbors(cd.pos, cd.node, point, k, h)
	}
}

// KNearestNeighborsBestFirst performs a best-first search with a node priority queue.
func (t *Tree) KNearestNeighborsBestFirst(point *Point, k int) []*Neighbor {
	if t.size == 0 || k <= 0 || point.Dim() != t.dim {
		return nil
	}
	root, ok := t.levels.get(t.root)
	if !ok {
		return nil
	}
	nh := &Neighbors{}
	heap.Init(nh)
	pq := &nodeQueue{}
	heap.Init(pq)
	rootDist := t.distanceFunc(point, root.point)
	heap.Push(pq, nodeItem{pos: t.root, node: root, lb: rootDist - t.boundRadius(t.root, root), centerDist: rootDist})

	for pq.Len() > 0 {
		top := heap.Pop(pq).(nodeItem)
		if nh.Len() == k && top.lb >= (*nh)[0].Distance {
			break
		}
		offer(nh, k, Neighbor{Point: top.node.point, Distance: top.centerDist})
		for _, index := range top.node.children {
			childPos := Position{Level: top.pos.Level - 1, Index: index}
			child, ok := t.levels.get(childPos)
			if !ok {
				continue
			}
			cd := t.distanceFunc(point, child.point)
			lb := cd - t.boundRadius(childPos, child)
			if nh.Len() == k && lb >= (*nh)[0].Distance {
				continue
			}
			heap.Push(pq, nodeItem{pos: childPos, node: child, lb: lb, centerDist: cd})
		}
	}
	return drain(nh)
}

func offer(h *Neighbors, k int, n Neighbor) {
	if h.Len() < k {
		heap.Push(h, n)
	} else if n.Distance < (*h)[0].Distance {
		heap.Pop(h)
		heap.Push(h, n)
	}
}

func drain(h *Neighbors) []*Neighbor {
	result := make([]*Neighbor, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		n := heap.Pop(h).(Neighbor)
		result[i] = &n
	}
	return result
}

// RefreshRadii recomputes every cached subtree radius bottom-up and marks
// them fresh for the current tree version.
func (t *Tree) RefreshRadii() {
	order := t.levels.sorted()
	for i := len(order) - 1; i >= 0; i-- {
		levelNum := order[i]
		for _, node := range t.levels[levelNum].nodes {
			maxR := float32(0)
			for _, index := range node.children {
				child, ok := t.levels.get(Position{Level: levelNum - 1, Index: index})
				if !ok {
					continue
				}
				if d := t.distanceFunc(node.point, child.point) + child.radius; d > maxR {
					maxR = d
				}
			}
			node.radius = maxR
			node.radiusVersion = t.version
		}
	}
}

// Radius returns the cached subtree radius at pos, reporting false when it is
// unset or stale.
func (t *Tree) Radius(pos Position) (float32, bool) {
	node, ok := t.levels.get(pos)
	if !ok || node.radiusVersion != t.version {
		return 0, false
	}
	return node.radius, true
}

func (t *Tree) boundRadius(pos Position, n *Node) float32 {
	if t.boundStrategy == BoundPerNode && n.radiusVersion == t.version {
		return n.radius
	}
	bound := DescendantBound(pos.Level)
	if math.IsInf(float64(bound), 0) {
		return float32(math.MaxFloat32)
	}
	return bound
}

type nodeItem struct {
	pos        Position
	node       *Node
	lb         float32
	centerDist float32
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].lb < q[j].lb }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(nodeItem)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
