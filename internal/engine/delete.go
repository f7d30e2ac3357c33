package engine

import (
	"context"
	"errors"
	"fmt"

	"canvasbridge/engine/internal/batch"
	"canvasbridge/engine/internal/doctree"
	"canvasbridge/engine/internal/errinfo"
)

func (e *Engine) deleteMultipleNodes(ctx context.Context, c *DeleteMultipleNodes, commandID string) (any, *errinfo.ErrorInfo) {
	runCtx, done, errInfo := e.beginRun(ctx, CmdDeleteMultipleNodes, commandID)
	if errInfo != nil {
		return nil, errInfo
	}
	defer done()

	tracker := e.reporter.Track(commandID, CmdDeleteMultipleNodes)
	opts := e.chunking(e.cfg.Delete, c.ChunkSize)
	opts.Labels = batch.Labels{
		Plan: func(total, chunks int) string {
			return fmt.Sprintf("Found %d nodes to delete. Will process in %d chunks.", total, chunks)
		},
		ChunkStart: func(current, chunks int) string {
			return fmt.Sprintf("Deleting chunk %d/%d", current, chunks)
		},
		ChunkDone: func(current, chunks int, o batch.Outcome) string {
			return fmt.Sprintf("Completed chunk %d/%d. %d deleted, %d failed so far.", current, chunks, o.SuccessCount, o.FailureCount)
		},
		Complete: func(o batch.Outcome) string {
			return fmt.Sprintf("Deletion complete: %d deleted, %d failed", o.SuccessCount, o.FailureCount)
		},
	}

	out, err := batch.Run(runCtx, tracker, c.NodeIDs, func(id string) string { return id }, e.deleteOne, opts)
	if err != nil {
		return nil, errinfo.Canceled(CmdDeleteMultipleNodes, fmt.Sprintf("deletion %s canceled after %d/%d chunks", commandID, out.Chunks, out.TotalChunks))
	}
	return map[string]any{
		"success":           out.Success(),
		"nodesDeleted":      out.SuccessCount,
		"nodesFailed":       out.FailureCount,
		"totalNodes":        out.TotalItems,
		"results":           out.Results,
		"completedInChunks": out.Chunks,
		"commandId":         commandID,
	}, nil
}

func (e *Engine) deleteOne(ctx context.Context, id string) batch.Result {
	node, err := e.host.Node(ctx, id)
	if errors.Is(err, doctree.ErrNotFound) {
		return batch.Failed(id, "Node not found: %s", id)
	}
	if err != nil {
		return batch.Failed(id, "Error reading node: %v", err)
	}
	if err := e.host.DeleteNode(ctx, id); err != nil {
		if errors.Is(err, doctree.ErrNotFound) {
			return batch.Failed(id, "Node not found: %s", id)
		}
		return batch.Failed(id, "Error deleting node: %v", err)
	}
	return batch.Succeeded(id, map[string]any{
		"nodeInfo": map[string]any{"id": node.ID, "name": node.Name, "type": node.Type},
	})
}
