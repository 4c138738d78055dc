package mcts

import "github.com/brensch/chessmcts/executor/convert"

// NodeID indexes into a Tree's node arena.
type NodeID int32

const nilNode NodeID = -1

// Node represents a position in the search tree. Value statistics are from
// the perspective of the side to move at this node.
type Node struct {
	Visits   int
	ValueSum float64
	Prior    float64
	Parent   NodeID
	// Action is the edge from Parent that leads here.
	Action convert.ActionIndex

	// Children are allocated together on expansion, so they occupy
	// [firstChild, firstChild+numChildren) in ascending Action order.
	firstChild  NodeID
	numChildren int32
}

// Value is the mean backed-up value, or 0 for an unvisited node.
func (n *Node) Value() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.ValueSum / float64(n.Visits)
}

func (n *Node) IsExpanded() bool { return n.numChildren > 0 }

// Tree is the arena for one search call. It is not safe for concurrent use.
type Tree struct {
	nodes []Node
	root  NodeID
}

func newTree(capacity int) *Tree {
	t := &Tree{nodes: make([]Node, 0, capacity)}
	t.root = t.alloc(nilNode, convert.NoAction, 1)
	return t
}

func (t *Tree) alloc(parent NodeID, action convert.ActionIndex, prior float64) NodeID {
	t.nodes = append(t.nodes, Node{
		Parent:     parent,
		Action:     action,
		Prior:      prior,
		firstChild: nilNode,
	})
	return NodeID(len(t.nodes) - 1)
}

// expand attaches one child per action. actions must be sorted ascending and
// unique. Pointers into the arena are invalid after this call.
func (t *Tree) expand(id NodeID, actions []convert.ActionIndex, priors []float64) {
	if t.nodes[id].numChildren > 0 || len(actions) == 0 {
		return
	}
	first := NodeID(len(t.nodes))
	for i, a := range actions {
		t.alloc(id, a, priors[i])
	}
	t.nodes[id].firstChild = first
	t.nodes[id].numChildren = int32(len(actions))
}

func (t *Tree) RootID() NodeID { return t.root }

func (t *Tree) Root() *Node { return &t.nodes[t.root] }

// Node returns the node for id. The pointer is valid until the tree grows.
func (t *Tree) Node(id NodeID) *Node { return &t.nodes[id] }

// Children returns the child ids of id in ascending action order.
func (t *Tree) Children(id NodeID) []NodeID {
	n := &t.nodes[id]
	out := make([]NodeID, n.numChildren)
	for i := range out {
		out[i] = n.firstChild + NodeID(i)
	}
	return out
}

// Len is the number of allocated nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// backpropagate walks from id to the root, flipping the sign at each level.
func (t *Tree) backpropagate(id NodeID, v float64) {
	for id != nilNode {
		n := &t.nodes[id]
		n.Visits++
		n.ValueSum += v
		v = -v
		id = n.Parent
	}
}

// bestChild is the most visited root child, ties to the lower action.
func (t *Tree) bestChild() (NodeID, bool) {
	root := &t.nodes[t.root]
	if root.numChildren == 0 {
		return nilNode, false
	}
	best := root.firstChild
	for i := int32(1); i < root.numChildren; i++ {
		id := root.firstChild + NodeID(i)
		if t.nodes[id].Visits > t.nodes[best].Visits {
			best = id
		}
	}
	return best, true
}
