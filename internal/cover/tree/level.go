package tree

import "sort"

// Position addresses a node by its level and local index within that level.
type Position struct {
	Level int32
	Index int32
}

type level struct {
	nodes  map[int32]*Node
	maxKey int32
}

// levels maps a level number to its resident nodes. A level is present only
// while it holds at least one node.
type levels map[int32]*level

func (l levels) get(pos Position) (*Node, bool) {
	lvl, ok := l[pos.Level]
	if !ok {
		return nil, false
	}
	node, ok := lvl.nodes[pos.Index]
	return node, ok
}

// put appends the node to the level using max key + 1, or 0 for a new level.
func (l levels) put(levelNum int32, node *Node) int32 {
	lvl, ok := l[levelNum]
	if !ok {
		l[levelNum] = &level{nodes: map[int32]*Node{0: node}}
		return 0
	}
	lvl.maxKey++
	lvl.nodes[lvl.maxKey] = node
	return lvl.maxKey
}

// putAt places the node as the sole occupant of a new level.
func (l levels) putAt(pos Position, node *Node) bool {
	if _, ok := l[pos.Level]; ok {
		return false
	}
	l[pos.Level] = &level{nodes: map[int32]*Node{pos.Index: node}, maxKey: pos.Index}
	return true
}

// remove deletes the node and drops its level once emptied.
func (l levels) remove(pos Position) (*Node, bool) {
	lvl, ok := l[pos.Level]
	if !ok {
		return nil, false
	}
	node, ok := lvl.nodes[pos.Index]
	if !ok {
		return nil, false
	}
	delete(lvl.nodes, pos.Index)
	if len(lvl.nodes) == 0 {
		delete(l, pos.Level)
		return node, true
	}
	if pos.Index == lvl.maxKey {
		lvl.maxKey = maxKey(lvl.nodes)
	}
	return node, true
}

func (l levels) minIndex(levelNum int32) (int32, bool) {
	lvl, ok := l[levelNum]
	if !ok || len(lvl.nodes) == 0 {
		return 0, false
	}
	first := true
	var result int32
	for k := range lvl.nodes {
		if first || k < result {
			result = k
			first = false
		}
	}
	return result, true
}

func (l levels) count() int {
	total := 0
	for _, lvl := range l {
		total += len(lvl.nodes)
	}
	return total
}

// sorted returns level numbers in descending order.
func (l levels) sorted() []int32 {
	result := make([]int32, 0, len(l))
	for k := range l {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] > result[j] })
	return result
}

func maxKey(nodes map[int32]*Node) int32 {
	first := true
	var result int32
	for k := range nodes {
		if first || k > result {
			result = k
			first = false
		}
	}
	return result
}
