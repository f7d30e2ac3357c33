package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"canvasbridge/engine/internal/doctree"
	"canvasbridge/engine/internal/errinfo"
)

func (e *Engine) nodeInfo(ctx context.Context, c *GetNodeInfo) (any, *errinfo.ErrorInfo) {
	node, err := e.host.Node(ctx, c.NodeID)
	if err != nil {
		return nil, e.hostError(CmdGetNodeInfo, c.NodeID, err)
	}
	return node, nil
}

// nodesInfo looks the ids up concurrently. Ids that do not resolve are left
// out of the result; any other host failure fails the command.
func (e *Engine) nodesInfo(ctx context.Context, c *GetNodesInfo) (any, *errinfo.ErrorInfo) {
	found := make([]*doctree.Node, len(c.NodeIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range c.NodeIDs {
		g.Go(func() error {
			node, err := e.host.Node(gctx, id)
			if errors.Is(err, doctree.ErrNotFound) {
				return nil
			}
			if err != nil {
				return &nodeError{id: id, err: err}
			}
			found[i] = &node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var ne *nodeError
		if errors.As(err, &ne) {
			return nil, e.hostError(CmdGetNodesInfo, ne.id, ne.err)
		}
		return nil, e.hostError(CmdGetNodesInfo, "", err)
	}
	nodes := make([]doctree.Node, 0, len(found))
	for _, n := range found {
		if n != nil {
			nodes = append(nodes, *n)
		}
	}
	return nodes, nil
}

type nodeError struct {
	id  string
	err error
}

func (e *nodeError) Error() string { return e.id + ": " + e.err.Error() }
func (e *nodeError) Unwrap() error { return e.err }

func (e *Engine) deleteNode(ctx context.Context, c *DeleteNode) (any, *errinfo.ErrorInfo) {
	node, err := e.host.Node(ctx, c.NodeID)
	if err != nil {
		return nil, e.hostError(CmdDeleteNode, c.NodeID, err)
	}
	if err := e.host.DeleteNode(ctx, c.NodeID); err != nil {
		return nil, e.hostError(CmdDeleteNode, c.NodeID, err)
	}
	e.logger.Info("engine.node_deleted", "node_id", node.ID, "type", node.Type)
	return map[string]any{
		"id":   node.ID,
		"name": node.Name,
		"type": node.Type,
	}, nil
}
