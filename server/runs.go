package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/runlog"
)

// HistoryResponse is the chain of ledger entries leading to a node.
type HistoryResponse struct {
	// Entries in chronological order (input first, up to and including the requested node)
	Entries []HistoryEntry `json:"entries"`
	// HeadHash is the hash of the node that was requested
	HeadHash string `json:"head_hash"`
	// Depth is the number of entries in the history
	Depth int `json:"depth"`
}

// HistoryEntry is a single ledger entry of a run.
type HistoryEntry struct {
	Hash       string  `json:"hash"`
	ParentHash *string `json:"parent_hash,omitempty"`
	Kind       string  `json:"kind"`
	Flow       string  `json:"flow,omitempty"`
	Data       any     `json:"data,omitempty"`
}

// IngestResponse counts the outcome of POST /runs/nodes.
type IngestResponse struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// handleRunStats returns statistics about the run ledger.
func (s *Server) handleRunStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	nodes, err := s.storer.List(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list nodes"})
	}

	roots, err := s.storer.Roots(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get roots"})
	}

	leaves, err := s.storer.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	failed := 0
	for _, leaf := range leaves {
		if leaf.Kind() == runlog.KindError {
			failed++
		}
	}

	return c.JSON(map[string]any{
		"total_nodes":  len(nodes),
		"root_count":   len(roots),
		"leaf_count":   len(leaves),
		"failed_count": failed,
	})
}

// handleGetNode returns a single node by its hash.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "hash parameter required"})
	}

	node, err := s.storer.Get(c.UserContext(), hash)
	if err != nil {
		return s.notFound(c, err)
	}

	return c.JSON(node)
}

// handleListHistories returns one history per leaf, that is per distinct
// run outcome.
func (s *Server) handleListHistories(c *fiber.Ctx) error {
	ctx := c.UserContext()

	leaves, err := s.storer.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	histories := make([]HistoryResponse, 0, len(leaves))
	for _, leaf := range leaves {
		history, err := s.buildHistory(ctx, leaf.Hash)
		if err != nil {
			s.logger.Warn("failed to build history for leaf", zap.String("hash", leaf.Hash), zap.Error(err))
			continue
		}
		histories = append(histories, *history)
	}

	return c.JSON(map[string]any{
		"count":     len(histories),
		"histories": histories,
	})
}

// handleGetHistory returns the run chain leading up to a given node.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "hash parameter required"})
	}

	history, err := s.buildHistory(c.UserContext(), hash)
	if err != nil {
		return s.notFound(c, err)
	}

	return c.JSON(history)
}

// handleIngestNodes stores nodes pushed from another ledger. Each node must
// carry a hash matching its content; content addressing makes re-pushes
// harmless.
func (s *Server) handleIngestNodes(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var nodes []*runlog.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	var resp IngestResponse
	for _, node := range nodes {
		if node == nil || !node.Verify() {
			resp.Errors++
			continue
		}

		exists, err := s.storer.Has(ctx, node.Hash)
		if err != nil {
			s.logger.Error("failed to check node", zap.String("hash", node.Hash), zap.Error(err))
			resp.Errors++
			continue
		}
		if exists {
			resp.Duplicate++
			continue
		}

		if err := s.storer.Put(ctx, node); err != nil {
			s.logger.Error("failed to store node", zap.String("hash", node.Hash), zap.Error(err))
			resp.Errors++
			continue
		}
		resp.New++
	}

	s.logger.Info("ingested nodes",
		zap.Int("new", resp.New),
		zap.Int("duplicate", resp.Duplicate),
		zap.Int("errors", resp.Errors),
	)

	return c.JSON(resp)
}

func (s *Server) notFound(c *fiber.Ctx, err error) error {
	var nf runlog.ErrNotFound
	if errors.As(err, &nf) {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	s.logger.Error("failed to read run ledger", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to read run ledger"})
}

// buildHistory constructs a HistoryResponse for the given node hash.
func (s *Server) buildHistory(ctx context.Context, hash string) (*HistoryResponse, error) {
	// Descendants walks root first, which is already chronological
	chain, err := s.storer.Descendants(ctx, hash)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, len(chain))
	for i, node := range chain {
		entry := HistoryEntry{
			Hash:       node.Hash,
			ParentHash: node.ParentHash,
			Kind:       node.Kind(),
		}
		if content, ok := node.Content.(map[string]any); ok {
			if name, ok := content["flow"].(string); ok {
				entry.Flow = name
			}
			entry.Data = content["data"]
		}
		entries[i] = entry
	}

	return &HistoryResponse{
		Entries:  entries,
		HeadHash: hash,
		Depth:    len(entries),
	}, nil
}
