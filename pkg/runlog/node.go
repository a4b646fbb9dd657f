// Package runlog is a content-addressed ledger of flow runs. Each run is
// stored as a chain of nodes (input, prompt, model responses, tool results,
// outcome) where every node's hash covers its content and its parent's hash.
// Identical runs converge on the same nodes.
package runlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Node is a single content-addressed entry in the ledger.
type Node struct {
	// Hash is the SHA-256 of the canonical {content, parent} encoding,
	// hex-encoded.
	Hash string `json:"hash"`

	// ParentHash links to the previous node. Nil for the input node of a run.
	ParentHash *string `json:"parent_hash"`

	Content any `json:"content"`
}

type hashInput struct {
	Content any    `json:"content"`
	Parent  string `json:"parent,omitempty"`
}

// NewNode creates a node for content chained to parent, which may be nil.
func NewNode(content any, parent *Node) *Node {
	n := &Node{Content: content}
	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}

	n.Hash = n.computeHash()
	return n
}

func (n *Node) computeHash() string {
	in := hashInput{Content: n.Content}
	if n.ParentHash != nil {
		in.Parent = *n.ParentHash
	}

	// encoding/json sorts map keys, which makes the encoding canonical
	data, err := json.Marshal(in)
	if err != nil {
		panic("runlog: marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Kind returns the "kind" member of an entry node's content, if any.
func (n *Node) Kind() string { return n.member("kind") }

// Flow returns the name of the flow the node was recorded for, if any.
func (n *Node) Flow() string { return n.member("flow") }

func (n *Node) member(key string) string {
	if m, ok := n.Content.(map[string]any); ok {
		if v, ok := m[key].(string); ok {
			return v
		}
	}

	return ""
}

// Verify reports whether Hash matches the node's content and parent. Nodes
// received from elsewhere are checked before they are stored.
func (n *Node) Verify() bool {
	return n.Hash != "" && n.Hash == n.computeHash()
}
