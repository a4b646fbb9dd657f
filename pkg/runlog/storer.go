package runlog

import "context"

// Storer persists and traverses ledger nodes. Put is idempotent: identical
// content with an identical parent hashes the same and is stored once.
type Storer interface {
	// Put stores a node. Storing an existing hash is a no-op.
	Put(ctx context.Context, node *Node) error

	// Get returns ErrNotFound when the hash is unknown.
	Get(ctx context.Context, hash string) (*Node, error)

	Has(ctx context.Context, hash string) (bool, error)

	// GetByParent returns the children of parentHash, or the roots when
	// parentHash is nil.
	GetByParent(ctx context.Context, parentHash *string) ([]*Node, error)

	// List returns every node in insertion order.
	List(ctx context.Context) ([]*Node, error)

	// Roots returns the nodes without a parent.
	Roots(ctx context.Context) ([]*Node, error)

	// Leaves returns the nodes without children.
	Leaves(ctx context.Context) ([]*Node, error)

	// Ancestry returns the path from a node back to its root (node first).
	Ancestry(ctx context.Context, hash string) ([]*Node, error)

	// Descendants returns the path from the root down to a node (root first).
	Descendants(ctx context.Context, hash string) ([]*Node, error)

	// Depth is 0 for a root.
	Depth(ctx context.Context, hash string) (int, error)

	Close() error
}

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}

	return "node not found: " + e.Hash
}

// ancestry walks parent links with get, node first.
func ancestry(ctx context.Context, get func(context.Context, string) (*Node, error), hash string) ([]*Node, error) {
	var path []*Node
	for next := &hash; next != nil; {
		node, err := get(ctx, *next)
		if err != nil {
			return nil, err
		}
		path = append(path, node)
		next = node.ParentHash
	}

	return path, nil
}

func reversed(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}

	return out
}
