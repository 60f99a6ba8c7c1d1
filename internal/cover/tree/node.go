package tree

import "sort"

const noParent int32 = -1

// Node represents a cover-tree node. Children are local indices into the
// level directly below the node; parent is a local index into the level
// directly above it.
type Node struct {
	point    *Point
	children []int32
	parent   int32
	// radius caches the max distance to any descendant; it is only valid
	// while radiusVersion matches the owning tree version.
	radius        float32
	radiusVersion uint64
}

// NewNode constructs a parentless node for the provided point.
func NewNode(point *Point) *Node {
	return &Node{point: point, parent: noParent}
}

// NewNodeWithParent constructs a node linked to a parent index in the level above.
func NewNodeWithParent(point *Point, parent int32) *Node {
	return &Node{point: point, parent: parent}
}

// Point returns the node point.
func (n *Node) Point() *Point { return n.point }

// Children returns a copy of the child indices, in ascending order.
func (n *Node) Children() []int32 {
	if len(n.children) == 0 {
		return nil
	}
	return append([]int32(nil), n.children...)
}

// Parent returns the parent index and whether the node has a parent.
func (n *Node) Parent() (int32, bool) {
	return n.parent, n.parent != noParent
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

func (n *Node) addChild(index int32) {
	i := sort.Search(len(n.children), func(i int) bool { return n.children[i] >= index })
	if i < len(n.children) && n.children[i] == index {
		return
	}
	n.children = append(n.children, 0)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = index
}

func (n *Node) removeChild(index int32) bool {
	i := sort.Search(len(n.children), func(i int) bool { return n.children[i] >= index })
	if i == len(n.children) || n.children[i] != index {
		return false
	}
	n.children = append(n.children[:i], n.children[i+1:]...)
	return true
}

func (n *Node) hasChild(index int32) bool {
	i := sort.Search(len(n.children), func(i int) bool { return n.children[i] >= index })
	return i < len(n.children) && n.children[i] == index
}
