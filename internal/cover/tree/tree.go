package tree

import (
	"fmt"
	"math"
)

// Tree represents a single-owner cover tree over fixed-dimension points.
// Nodes live in a per-level store and reference each other by local index,
// so the structure holds no parent/child pointer cycles. Tree is not safe for
// concurrent use; callers that share a tree must synchronise externally.
type Tree struct {
	levels        levels
	root          Position
	bottom        Position
	size          int
	dim           int
	version       uint64
	distanceFunc  DistanceFunc
	descent       Descent
	boundStrategy BoundStrategy
	metrics       *Metrics
}

// New constructs a single-node tree with point at the given level. The point
// is both root and bottom and fixes the tree dimension.
func New(point *Point, level int32, opts ...Option) (*Tree, error) {
	if err := validPoint(point); err != nil {
		return nil, err
	}
	t := &Tree{distanceFunc: EuclideanDistance}
	for _, opt := range opts {
		opt(t)
	}
	t.init(point, level)
	return t, nil
}

func (t *Tree) init(point *Point, level int32) {
	pos := Position{Level: level}
	t.levels = levels{}
	t.levels.putAt(pos, NewNode(point))
	t.root, t.bottom = pos, pos
	t.size = 1
	t.dim = point.Dim()
	t.version++
}

// Len returns the number of stored points.
func (t *Tree) Len() int { return t.size }

// Dim returns the tree dimension, or 0 for an empty tree.
func (t *Tree) Dim() int { return t.dim }

// Root returns the root position.
func (t *Tree) Root() Position { return t.root }

// Bottom returns the position of a leaf on the lowest level.
func (t *Tree) Bottom() Position { return t.bottom }

// Height returns the number of levels spanned by the tree.
func (t *Tree) Height() int {
	if t.size == 0 {
		return 0
	}
	return int(t.root.Level-t.bottom.Level) + 1
}

// Levels returns the populated level numbers in descending order.
func (t *Tree) Levels() []int32 { return t.levels.sorted() }

// Node returns the node stored at pos.
func (t *Tree) Node(pos Position) (*Node, bool) { return t.levels.get(pos) }

// Distance returns the distance between the point and the root.
func (t *Tree) Distance(point *Point) float32 {
	root, ok := t.levels.get(t.root)
	if !ok {
		return float32(math.Inf(1))
	}
	return t.distanceFunc(point, root.point)
}

// Insert adds point as a new node. The tree grows upward until the root
// covers the point, then the point descends to its parent. Duplicates are
// stored as distinct nodes.
func (t *Tree) Insert(point *Point) error {
	if err := validPoint(point); err != nil {
		return err
	}
	if t.size == 0 {
		if t.distanceFunc == nil {
			t.distanceFunc = EuclideanDistance
		}
		t.init(point, 0)
		t.metrics.observeInsert()
		return nil
	}
	if point.Dim() != t.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, point.Dim(), t.dim)
	}
	for t.Distance(point) > CovDist(t.root.Level) {
		if err := t.MoveLeafToRoot(); err != nil {
			return err
		}
	}
	parent, err := t.descend(t.root, point)
	if err != nil {
		return err
	}
	if _, err = t.attach(parent, NewNode(point)); err != nil {
		return err
	}
	t.metrics.observeInsert()
	return nil
}

// descend walks down from start and returns the node the point should be
// attached under. The caller guarantees start covers the point.
func (t *Tree) descend(start Position, point *Point) (Position, error) {
	pos := start
	for {
		node, ok := t.levels.get(pos)
		if !ok {
			return pos, inconsistent("descend: missing node %v", pos)
		}
		next, found, err := t.selectChild(pos, node, point)
		if err != nil {
			return pos, err
		}
		if !found {
			return pos, nil
		}
		pos = Position{Level: pos.Level - 1, Index: next}
	}
}

func (t *Tree) selectChild(pos Position, node *Node, point *Point) (int32, bool, error) {
	childLevel := pos.Level - 1
	cover := CovDist(childLevel)
	var (
		best     int32
		bestDist float32
		found    bool
	)
	for _, index := range node.children {
		child, ok := t.levels.get(Position{Level: childLevel, Index: index})
		if !ok {
			return 0, false, inconsistent("node %v lists missing child %d", pos, index)
		}
		d := t.distanceFunc(point, child.point)
		if d > cover {
			continue
		}
		if t.descent == DescentFirst {
			return index, true, nil
		}
		if !found || d < bestDist {
			best, bestDist, found = index, d, true
		}
	}
	return best, found, nil
}

// attach stores node as a new child of parent, one level below it.
func (t *Tree) attach(parent Position, node *Node) (Position, error) {
	parentNode, ok := t.levels.get(parent)
	if !ok {
		return parent, inconsistent("attach: missing parent %v", parent)
	}
	node.parent = parent.Index
	node.children = node.children[:0]
	pos := Position{Level: parent.Level - 1}
	pos.Index = t.levels.put(pos.Level, node)
	parentNode.addChild(pos.Index)
	if pos.Level < t.bottom.Level {
		t.bottom = pos
	}
	t.size++
	t.version++
	return pos, nil
}

// MoveLeafToRoot promotes a leaf from the lowest level to a new root one
// level above the current root; the old root becomes its only child.
func (t *Tree) MoveLeafToRoot() error {
	if t.size == 0 {
		return nil
	}
	if t.size == 1 {
		node, ok := t.levels.remove(t.root)
		if !ok {
			return inconsistent("promote: missing root %v", t.root)
		}
		pos := Position{Level: t.root.Level + 1}
		t.levels.putAt(pos, node)
		t.root, t.bottom = pos, pos
		t.version++
		t.metrics.observePromotion()
		return nil
	}

	leafPos := t.bottom
	leaf, ok := t.levels.remove(leafPos)
	if !ok {
		return inconsistent("promote: missing bottom %v", leafPos)
	}
	if !leaf.IsLeaf() {
		return inconsistent("promote: bottom %v has children", leafPos)
	}
	if err := t.advanceBottom(leafPos.Level); err != nil {
		return err
	}

	parentPos := Position{Level: leafPos.Level + 1, Index: leaf.parent}
	parent, ok := t.levels.get(parentPos)
	if leaf.parent == noParent || !ok {
		return inconsistent("promote: leaf %v has no parent", leafPos)
	}
	if !parent.removeChild(leafPos.Index) {
		return inconsistent("promote: parent %v does not list leaf %v", parentPos, leafPos)
	}

	rootNode, ok := t.levels.get(t.root)
	if !ok {
		return inconsistent("promote: missing root %v", t.root)
	}
	newRoot := Position{Level: t.root.Level + 1}
	leaf.parent = noParent
	leaf.children = []int32{t.root.Index}
	if !t.levels.putAt(newRoot, leaf) {
		return inconsistent("promote: level %d above root is populated", newRoot.Level)
	}
	rootNode.parent = newRoot.Index
	t.root = newRoot
	t.version++
	t.metrics.observePromotion()
	return nil
}

// advanceBottom points bottom at the minimum index of the lowest populated
// level at or above from.
func (t *Tree) advanceBottom(from int32) error {
	for level := from; level <= t.root.Level; level++ {
		if index, ok := t.levels.minIndex(level); ok {
			t.bottom = Position{Level: level, Index: index}
			return nil
		}
	}
	return inconsistent("promote: no level left between %d and root %d", from, t.root.Level)
}

func (t *Tree) clear() {
	t.levels = levels{}
	t.root, t.bottom = Position{}, Position{}
	t.size = 0
	t.dim = 0
	t.version++
}

func validPoint(point *Point) error {
	if point == nil || len(point.Vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidPoint)
	}
	for i, v := range point.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite coordinate %d", ErrInvalidPoint, i)
		}
	}
	return nil
}
