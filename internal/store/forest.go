package store

import (
	"time"

	"github.com/samber/lo"

	"feedsync/internal/core"
)

// forest is one post's comment tree set. Top-level comments are the roots,
// replies nest through Children. An id index keeps node lookup O(1) at any
// depth, so mutations never pay a full-tree scan. Not safe for concurrent
// use; the Store serializes access.
type forest struct {
	roots []*core.Comment
	index map[string]*core.Comment
	size  int
}

func newForest() *forest {
	return &forest{index: map[string]*core.Comment{}}
}

// insert adds a comment under its parent, or to the top-level list when
// ParentID is nil. Re-inserting a present id is a no-op. Returns the number
// of nodes added, or core.ErrUnknownParent when the parent is not present
// yet.
func (f *forest) insert(c *core.Comment) (int, error) {
	if _, ok := f.index[c.ID]; ok {
		return 0, nil
	}

	node := copyComment(c)

	if c.ParentID == nil {
		f.roots = append(f.roots, node)
	} else {
		parent, ok := f.index[*c.ParentID]
		if !ok {
			return 0, core.ErrUnknownParent
		}
		parent.Children = append(parent.Children, node)
	}

	added := f.indexSubtree(node)
	f.size += added
	return added, nil
}

// update patches a node's body in place. Re-parenting is not supported, so
// ParentID and position are left untouched.
func (f *forest) update(id, body string, updatedAt time.Time) bool {
	node, ok := f.index[id]
	if !ok {
		return false
	}
	node.Body = body
	node.UpdatedAt = updatedAt
	return true
}

// remove splices a node out of the tree, cascading to its whole subtree.
// Returns the removed node and how many nodes went with it.
func (f *forest) remove(id string) (*core.Comment, int) {
	node, ok := f.index[id]
	if !ok {
		return nil, 0
	}

	if node.ParentID == nil {
		f.roots = spliceOut(f.roots, id)
	} else if parent, ok := f.index[*node.ParentID]; ok {
		parent.Children = spliceOut(parent.Children, id)
	} else {
		f.roots = spliceOut(f.roots, id)
	}

	removed := f.unindexSubtree(node)
	f.size -= removed
	return node, removed
}

// resolve swaps a node's provisional identity for the server-confirmed one,
// keeping its position and Children. The parent may itself still be pending;
// the index makes the lookup depth-independent either way.
func (f *forest) resolve(tempID string, real *core.Comment) bool {
	node, ok := f.index[tempID]
	if !ok {
		return false
	}

	delete(f.index, tempID)
	node.ID = real.ID
	node.AuthorID = real.AuthorID
	node.Body = real.Body
	node.CreatedAt = real.CreatedAt
	node.UpdatedAt = real.UpdatedAt
	f.index[node.ID] = node

	// Children minted locally under the temp id keep pointing at the node
	// itself; only their ParentID strings need re-keying.
	for _, child := range node.Children {
		if child.ParentID != nil && *child.ParentID == tempID {
			id := node.ID
			child.ParentID = &id
		}
	}
	return true
}

func (f *forest) find(id string) (*core.Comment, bool) {
	node, ok := f.index[id]
	return node, ok
}

func (f *forest) has(id string) bool {
	_, ok := f.index[id]
	return ok
}

// ids returns every node id in the forest.
func (f *forest) ids() []string {
	return lo.Keys(f.index)
}

// recount walks the whole forest. It must always agree with size; tests
// lean on that.
func (f *forest) recount() int {
	total := 0
	for _, root := range f.roots {
		total += subtreeSize(root)
	}
	return total
}

func (f *forest) indexSubtree(node *core.Comment) int {
	f.index[node.ID] = node
	n := 1
	for _, child := range node.Children {
		n += f.indexSubtree(child)
	}
	return n
}

func (f *forest) unindexSubtree(node *core.Comment) int {
	delete(f.index, node.ID)
	n := 1
	for _, child := range node.Children {
		n += f.unindexSubtree(child)
	}
	return n
}

func subtreeSize(node *core.Comment) int {
	n := 1
	for _, child := range node.Children {
		n += subtreeSize(child)
	}
	return n
}

func spliceOut(nodes []*core.Comment, id string) []*core.Comment {
	return lo.Reject(nodes, func(c *core.Comment, _ int) bool {
		return c.ID == id
	})
}

// copyComment deep-copies a comment subtree so the forest owns its nodes.
func copyComment(c *core.Comment) *core.Comment {
	cp := *c
	if c.ParentID != nil {
		id := *c.ParentID
		cp.ParentID = &id
	}
	cp.Children = lo.Map(c.Children, func(child *core.Comment, _ int) *core.Comment {
		return copyComment(child)
	})
	return &cp
}
