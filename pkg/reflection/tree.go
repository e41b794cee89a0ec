// Package reflection serves reflection questions and their reply trees.
package reflection

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/killallgit/chatnote/pkg/api"
)

// Node is an answer with its replies
type Node struct {
	Answer   api.Answer
	Children []*Node
}

// FlatToTree builds reply trees from a flat answer list. Parents are found
// by ID. Answers whose parent is unknown become roots, as does any answer
// whose parent chain would loop back to itself. Siblings keep input order.
func FlatToTree(answers []api.Answer) []*Node {
	byID := make(map[string]int, len(answers))
	for i, a := range answers {
		if _, dup := byID[a.ID]; !dup {
			byID[a.ID] = i
		}
	}

	parentOf := func(i int) (int, bool) {
		p, ok := byID[answers[i].ParentID]
		if answers[i].ParentID == "" || !ok || p == i {
			return 0, false
		}
		return p, true
	}

	// an answer is a root when its ancestor walk leaves the list or
	// revisits itself
	isRoot := make([]bool, len(answers))
	for i := range answers {
		p, ok := parentOf(i)
		if !ok {
			isRoot[i] = true
			continue
		}
		seen := map[int]bool{i: true}
		for ok {
			if seen[p] {
				break
			}
			seen[p] = true
			p, ok = parentOf(p)
		}
		// the walk stopped on a revisit: i sits on or below a cycle
		if ok && p == i {
			isRoot[i] = true
		}
	}

	nodes := make([]*Node, len(answers))
	for i, a := range answers {
		nodes[i] = &Node{Answer: a}
	}

	var roots []*Node
	for i := range answers {
		if isRoot[i] {
			roots = append(roots, nodes[i])
			continue
		}
		p, _ := parentOf(i)
		nodes[p].Children = append(nodes[p].Children, nodes[i])
	}
	return roots
}

// Walk visits every node depth first with its depth
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(roots, 0)
}

// Fingerprint identifies the content of a flat answer list
func Fingerprint(answers []api.Answer) string {
	h := sha256.New()
	for _, a := range answers {
		h.Write([]byte(a.ID))
		h.Write([]byte{0})
		h.Write([]byte(a.ParentID))
		h.Write([]byte{0})
		h.Write([]byte(a.Content))
		h.Write([]byte{0})
		h.Write([]byte(a.UpdateTime))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TreeCache keeps built trees per question and rebuilds only when the
// answer list changes
type TreeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	builds  int
}

type cacheEntry struct {
	fingerprint string
	roots       []*Node
}

func NewTreeCache() *TreeCache {
	return &TreeCache{entries: make(map[string]cacheEntry)}
}

// Tree returns the tree for the question's answers
func (c *TreeCache) Tree(questionID string, answers []api.Answer) []*Node {
	fp := Fingerprint(answers)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[questionID]; ok && e.fingerprint == fp {
		return e.roots
	}
	roots := FlatToTree(answers)
	c.entries[questionID] = cacheEntry{fingerprint: fp, roots: roots}
	c.builds++
	return roots
}

// Cached returns the last tree built for the question
func (c *TreeCache) Cached(questionID string) ([]*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[questionID]
	return e.roots, ok
}

// Invalidate drops the cached tree of a question
func (c *TreeCache) Invalidate(questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, questionID)
}

// Builds returns how many trees have been built
func (c *TreeCache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}
