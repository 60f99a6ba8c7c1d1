package tree

import "iter"

// All yields every stored point with its level, in depth-first order from
// the root with children visited by ascending index.
func (t *Tree) All() iter.Seq2[int32, *Point] {
	return func(yield func(int32, *Point) bool) {
		if t.size == 0 {
			return
		}
		stack := []Position{t.root}
		for len(stack) > 0 {
			pos := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			node, ok := t.levels.get(pos)
			if !ok {
				continue
			}
			if !yield(pos.Level, node.point) {
				return
			}
			for i := len(node.children) - 1; i >= 0; i-- {
				stack = append(stack, Position{Level: pos.Level - 1, Index: node.children[i]})
			}
		}
	}
}

// Points returns every stored point.
func (t *Tree) Points() []*Point {
	result := make([]*Point, 0, t.size)
	for _, point := range t.All() {
		result = append(result, point)
	}
	return result
}

// Validate checks the structural invariants: covering between every node and
// its parent, index validity of every link, absence of empty levels, size
// accounting, and that every point lies within the root descendant bound.
// The first violation is returned wrapped in ErrInconsistent.
func (t *Tree) Validate() error {
	if t.size == 0 {
		if len(t.levels) != 0 {
			return inconsistent("empty tree holds %d levels", len(t.levels))
		}
		return nil
	}
	root, ok := t.levels.get(t.root)
	if !ok {
		return inconsistent("missing root %v", t.root)
	}
	if _, ok := root.Parent(); ok {
		return inconsistent("root %v has a parent", t.root)
	}
	bottom, ok := t.levels.get(t.bottom)
	if !ok {
		return inconsistent("missing bottom %v", t.bottom)
	}
	if !bottom.IsLeaf() {
		return inconsistent("bottom %v has children", t.bottom)
	}
	if count := t.levels.count(); count != t.size {
		return inconsistent("size %d, counted %d nodes", t.size, count)
	}
	rootBound := DescendantBound(t.root.Level)
	for levelNum, lvl := range t.levels {
		if len(lvl.nodes) == 0 {
			return inconsistent("level %d is empty", levelNum)
		}
		if levelNum > t.root.Level || levelNum < t.bottom.Level {
			return inconsistent("level %d outside [%d, %d]", levelNum, t.bottom.Level, t.root.Level)
		}
		if levelNum == t.root.Level && len(lvl.nodes) != 1 {
			return inconsistent("root level %d holds %d nodes", levelNum, len(lvl.nodes))
		}
		for index, node := range lvl.nodes {
			pos := Position{Level: levelNum, Index: index}
			if err := t.validateNode(pos, node); err != nil {
				return err
			}
			if d := t.distanceFunc(node.point, root.point); d > rootBound && pos != t.root {
				return inconsistent("node %v at distance %v escapes root bound %v", pos, d, rootBound)
			}
		}
	}
	return nil
}

func (t *Tree) validateNode(pos Position, node *Node) error {
	if node.point.Dim() != t.dim {
		return inconsistent("node %v has dimension %d, want %d", pos, node.point.Dim(), t.dim)
	}
	if pos != t.root {
		parentIndex, ok := node.Parent()
		if !ok {
			return inconsistent("node %v has no parent", pos)
		}
		parentPos := Position{Level: pos.Level + 1, Index: parentIndex}
		parent, ok := t.levels.get(parentPos)
		if !ok {
			return inconsistent("node %v references missing parent %v", pos, parentPos)
		}
		if !parent.hasChild(pos.Index) {
			return inconsistent("parent %v does not list child %v", parentPos, pos)
		}
		if d := t.distanceFunc(node.point, parent.point); d > CovDist(parentPos.Level) {
			return inconsistent("node %v at distance %v from parent %v exceeds covdist %v", pos, d, parentPos, CovDist(parentPos.Level))
		}
	}
	for _, index := range node.children {
		childPos := Position{Level: pos.Level - 1, Index: index}
		child, ok := t.levels.get(childPos)
		if !ok {
			return inconsistent("node %v references missing child %v", pos, childPos)
		}
		if child.parent != pos.Index {
			return inconsistent("child %v points at parent %d, want %d", childPos, child.parent, pos.Index)
		}
	}
	return nil
}
