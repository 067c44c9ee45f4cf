package utils

import (
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"
)

// CommentNode is one comment plus its direct replies, in creation order.
type CommentNode struct {
	Comment  models.Comment `json:"comment"`
	Children []*CommentNode `json:"children"`
}

// BuildCommentTree assembles a flat, insertion-ordered comment list into a
// forest of top-level comments. Sibling order is creation order (the input
// order). Parent linkage is validated at write time, but a cyclic or
// self-referential chain would make naive traversal loop forever, so nodes
// whose parent chain never reaches a root are dropped instead of rendered.
func BuildCommentTree(comments []models.Comment) []*CommentNode {
	nodes := make(map[string]*CommentNode, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &CommentNode{Comment: c}
	}

	var roots []*CommentNode
	for _, c := range comments {
		node := nodes[c.ID]
		if c.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*c.ParentID]
		if !ok || parent == node || !reachesRoot(c, nodes) {
			// Orphaned or cyclic parent chain: drop rather than loop.
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots
}

// reachesRoot walks the parent chain and reports whether it terminates at a
// top-level comment within len(nodes) hops.
func reachesRoot(c models.Comment, nodes map[string]*CommentNode) bool {
	seen := 0
	cur := c
	for cur.ParentID != nil {
		seen++
		if seen > len(nodes) {
			return false
		}
		parent, ok := nodes[*cur.ParentID]
		if !ok {
			return false
		}
		if parent.Comment.ID == cur.ID {
			return false
		}
		cur = parent.Comment
	}
	return true
}
