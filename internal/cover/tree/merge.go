package tree

import "fmt"

// MergeStats describes how the nodes of the consumed tree were absorbed.
type MergeStats struct {
	// Grafted counts nodes copied structurally, with their subtree links intact.
	Grafted int
	// Descended counts reconciled nodes placed by descent from their merge partner.
	Descended int
	// Reinserted counts leftovers inserted point by point from the root.
	Reinserted int
	// Recursions counts reconciled node pairs.
	Recursions int
}

// pending is a node of the consumed tree that could not be attached where it
// was examined. With single set only the node itself is outstanding; its
// children were already reconciled.
type pending struct {
	pos    Position
	single bool
}

// Merge absorbs other into t. On success t holds the union of both point
// multisets and other is left empty. Subtrees of other that fit under a node
// of t are grafted whole rather than reinserted point by point.
func (t *Tree) Merge(other *Tree) (MergeStats, error) {
	var stats MergeStats
	if other == t {
		return stats, ErrSelfMerge
	}
	if other == nil || other.size == 0 {
		return stats, nil
	}
	if t.size == 0 {
		if t.distanceFunc == nil {
			t.distanceFunc = EuclideanDistance
		}
		t.swap(other)
		other.clear()
		t.metrics.observeMerge(stats)
		return stats, nil
	}
	if other.dim != t.dim {
		return stats, fmt.Errorf("%w: merging %d-d tree into %d-d tree", ErrDimension, other.dim, t.dim)
	}
	expected := t.size + other.size
	if other.root.Level > t.root.Level {
		t.swap(other)
	}
	for other.root.Level < t.root.Level {
		if err := other.MoveLeafToRoot(); err != nil {
			return stats, err
		}
	}
	if err := t.alignRoots(other); err != nil {
		return stats, err
	}

	leftovers, err := t.reconcile(t.root, other, other.root, &stats)
	if err != nil {
		return stats, err
	}
	for _, item := range leftovers {
		attached, err := t.tryGraft(t.root, other, item, &stats)
		if err != nil {
			return stats, err
		}
		if attached {
			continue
		}
		if err = t.reinsert(other, item, &stats); err != nil {
			return stats, err
		}
	}
	if t.size != expected {
		return stats, inconsistent("merge: size %d, want %d", t.size, expected)
	}
	other.clear()
	t.metrics.observeMerge(stats)
	return stats, nil
}

// alignRoots grows both trees in lockstep until their roots cover each other.
func (t *Tree) alignRoots(other *Tree) error {
	for {
		root, ok := t.levels.get(t.root)
		if !ok {
			return inconsistent("merge: missing root %v", t.root)
		}
		otherRoot, ok := other.levels.get(other.root)
		if !ok {
			return inconsistent("merge: missing root %v", other.root)
		}
		if t.distanceFunc(root.point, otherRoot.point) <= CovDist(t.root.Level) {
			return nil
		}
		if err := t.MoveLeafToRoot(); err != nil {
			return err
		}
		if err := other.MoveLeafToRoot(); err != nil {
			return err
		}
	}
}

// reconcile merges the subtree of other at q into the subtree of t at p.
// Both positions share a level. It returns the nodes of other that p could
// not absorb.
func (t *Tree) reconcile(p Position, other *Tree, q Position, stats *MergeStats) ([]pending, error) {
	stats.Recursions++
	pNode, ok := t.levels.get(p)
	if !ok {
		return nil, inconsistent("merge: missing node %v", p)
	}
	qNode, ok := other.levels.get(q)
	if !ok {
		return nil, inconsistent("merge: missing node %v in merged tree", q)
	}
	cover := CovDist(p.Level)
	sep := SepDist(p.Level)
	var leftovers []pending
	for _, index := range qNode.Children() {
		r := Position{Level: q.Level - 1, Index: index}
		rNode, ok := other.levels.get(r)
		if !ok {
			return nil, inconsistent("merge: node %v lists missing child %d", q, index)
		}
		if t.distanceFunc(rNode.point, pNode.point) > cover {
			leftovers = append(leftovers, pending{pos: r})
			continue
		}
		s, found, err := t.separatedMatch(p, pNode, rNode.point, sep)
		if err != nil {
			return nil, err
		}
		if !found {
			if err = t.graft(p, other, pending{pos: r}, stats); err != nil {
				return nil, err
			}
			continue
		}
		carried, err := t.reconcile(Position{Level: p.Level - 1, Index: s}, other, r, stats)
		if err != nil {
			return nil, err
		}
		for _, item := range carried {
			attached, err := t.tryGraft(p, other, item, stats)
			if err != nil {
				return nil, err
			}
			if !attached {
				leftovers = append(leftovers, item)
			}
		}
	}

	if t.distanceFunc(qNode.point, pNode.point) > cover {
		return append(leftovers, pending{pos: q, single: true}), nil
	}
	parent, err := t.descend(p, qNode.point)
	if err != nil {
		return nil, err
	}
	if _, err = t.attach(parent, NewNode(qNode.point)); err != nil {
		return nil, err
	}
	stats.Descended++
	return leftovers, nil
}

// separatedMatch finds the first child of p closer than sep to point.
func (t *Tree) separatedMatch(p Position, pNode *Node, point *Point, sep float32) (int32, bool, error) {
	for _, index := range pNode.children {
		child, ok := t.levels.get(Position{Level: p.Level - 1, Index: index})
		if !ok {
			return 0, false, inconsistent("merge: node %v lists missing child %d", p, index)
		}
		if t.distanceFunc(child.point, point) < sep {
			return index, true, nil
		}
	}
	return 0, false, nil
}

// tryGraft attaches item under parent when parent covers it.
func (t *Tree) tryGraft(parent Position, other *Tree, item pending, stats *MergeStats) (bool, error) {
	parentNode, ok := t.levels.get(parent)
	if !ok {
		return false, inconsistent("merge: missing node %v", parent)
	}
	itemNode, ok := other.levels.get(item.pos)
	if !ok {
		return false, inconsistent("merge: missing node %v in merged tree", item.pos)
	}
	if t.distanceFunc(itemNode.point, parentNode.point) > CovDist(parent.Level) {
		return false, nil
	}
	return true, t.graft(parent, other, item, stats)
}

// graft copies item, and unless it is single its whole subtree, under parent.
// A subtree lifted to a higher level keeps covering, since covdist grows
// with level.
func (t *Tree) graft(parent Position, other *Tree, item pending, stats *MergeStats) error {
	if item.pos.Level > parent.Level-1 {
		return inconsistent("merge: cannot lower %v under %v", item.pos, parent)
	}
	src, ok := other.levels.get(item.pos)
	if !ok {
		return inconsistent("merge: missing node %v in merged tree", item.pos)
	}
	pos, err := t.attach(parent, NewNode(src.point))
	if err != nil {
		return err
	}
	stats.Grafted++
	if item.single {
		return nil
	}
	for _, index := range src.children {
		child := pending{pos: Position{Level: item.pos.Level - 1, Index: index}}
		if err = t.graft(pos, other, child, stats); err != nil {
			return err
		}
	}
	return nil
}

// reinsert inserts the points of item one at a time from the root.
func (t *Tree) reinsert(other *Tree, item pending, stats *MergeStats) error {
	src, ok := other.levels.get(item.pos)
	if !ok {
		return inconsistent("merge: missing node %v in merged tree", item.pos)
	}
	if err := t.Insert(src.point); err != nil {
		return err
	}
	stats.Reinserted++
	if item.single {
		return nil
	}
	for _, index := range src.children {
		child := pending{pos: Position{Level: item.pos.Level - 1, Index: index}}
		if err := t.reinsert(other, child, stats); err != nil {
			return err
		}
	}
	return nil
}

// swap exchanges the structural state of two trees; options stay with their owner.
func (t *Tree) swap(other *Tree) {
	t.levels, other.levels = other.levels, t.levels
	t.root, other.root = other.root, t.root
	t.bottom, other.bottom = other.bottom, t.bottom
	t.size, other.size = other.size, t.size
	t.dim, other.dim = other.dim, t.dim
	t.version++
	other.version++
}

// Adopt moves the structure of other into a new tree configured with opts,
// leaving other empty.
func Adopt(other *Tree, opts ...Option) *Tree {
	t := &Tree{distanceFunc: EuclideanDistance}
	for _, opt := range opts {
		opt(t)
	}
	if other != nil {
		t.swap(other)
		other.clear()
	}
	return t
}
