package engine

import (
	"context"
	"errors"
	"fmt"

	"canvasbridge/engine/internal/batch"
	"canvasbridge/engine/internal/diff"
	"canvasbridge/engine/internal/doctree"
	"canvasbridge/engine/internal/errinfo"
	"canvasbridge/engine/internal/fontrun"
	"canvasbridge/engine/internal/hostworker"
)

func (e *Engine) setTextContent(ctx context.Context, c *SetTextContent) (any, *errinfo.ErrorInfo) {
	node, err := e.host.Node(ctx, c.NodeID)
	if err != nil {
		return nil, e.hostError(CmdSetTextContent, c.NodeID, err)
	}
	if !node.IsText() {
		return nil, errinfo.UnsupportedOperation(CmdSetTextContent, c.NodeID, fmt.Sprintf("Node is not a text node: %s", c.NodeID))
	}
	report, err := e.resolver.SetCharacters(ctx, node, *c.Text, c.strategy, c.FallbackFont)
	if err != nil {
		if errors.Is(err, doctree.ErrNotFound) || errors.Is(err, hostworker.ErrUnavailable) {
			return nil, e.hostError(CmdSetTextContent, c.NodeID, err)
		}
		return nil, errinfo.ItemFailed(CmdSetTextContent, c.NodeID, fmt.Sprintf("Error setting text: %v", err))
	}
	stats := diff.Count(node.Text.Characters, *c.Text)
	e.logger.Info("engine.text_set", "node_id", c.NodeID, "strategy", string(report.Strategy), "runs", report.Runs, "fallback", report.FallbackUsed)
	return map[string]any{
		"id":           node.ID,
		"name":         node.Name,
		"characters":   *c.Text,
		"fontName":     report.Font,
		"strategy":     report.Strategy,
		"fallbackUsed": report.FallbackUsed,
		"runs":         report.Runs,
		"linesAdded":   stats.LinesAdded,
		"linesRemoved": stats.LinesRemoved,
		"changed":      stats.Changed(),
	}, nil
}

func (e *Engine) setMultipleTextContents(ctx context.Context, c *SetMultipleTextContents, commandID string) (any, *errinfo.ErrorInfo) {
	runCtx, done, errInfo := e.beginRun(ctx, CmdSetMultipleTextContents, commandID)
	if errInfo != nil {
		return nil, errInfo
	}
	defer done()

	tracker := e.reporter.Track(commandID, CmdSetMultipleTextContents)
	opts := e.chunking(e.cfg.Text, c.ChunkSize)
	opts.Labels = batch.Labels{
		Plan: func(total, chunks int) string {
			return fmt.Sprintf("Found %d text replacements. Will process in %d chunks.", total, chunks)
		},
		ChunkStart: func(current, chunks int) string {
			return fmt.Sprintf("Processing text replacements chunk %d/%d", current, chunks)
		},
		Complete: func(o batch.Outcome) string {
			return fmt.Sprintf("Text replacement complete: %d successful, %d failed", o.SuccessCount, o.FailureCount)
		},
	}

	out, err := batch.Run(runCtx, tracker, c.Text, func(r TextReplacement) string { return r.NodeID },
		func(itemCtx context.Context, r TextReplacement) batch.Result {
			return e.replaceText(itemCtx, r, c.strategy)
		}, opts)
	if err != nil {
		return nil, errinfo.Canceled(CmdSetMultipleTextContents, fmt.Sprintf("text replacement %s canceled after %d/%d chunks", commandID, out.Chunks, out.TotalChunks))
	}
	return map[string]any{
		"success":             out.Success(),
		"nodeId":              c.NodeID,
		"replacementsApplied": out.SuccessCount,
		"replacementsFailed":  out.FailureCount,
		"totalReplacements":   out.TotalItems,
		"results":             out.Results,
		"completedInChunks":   out.Chunks,
		"commandId":           commandID,
	}, nil
}

// replaceText rewrites one node; every failure is captured in the result.
func (e *Engine) replaceText(ctx context.Context, r TextReplacement, strategy fontrun.Strategy) batch.Result {
	if r.NodeID == "" || r.Text == nil {
		return batch.Failed(r.NodeID, "Missing nodeId or text")
	}
	node, err := e.host.Node(ctx, r.NodeID)
	if errors.Is(err, doctree.ErrNotFound) {
		return batch.Failed(r.NodeID, "Node not found: %s", r.NodeID)
	}
	if err != nil {
		return batch.Failed(r.NodeID, "Error reading node: %v", err)
	}
	if !node.IsText() {
		return batch.Failed(r.NodeID, "Node is not a text node: %s", r.NodeID)
	}
	report, err := e.resolver.SetCharacters(ctx, node, *r.Text, strategy, nil)
	if err != nil {
		if errors.Is(err, hostworker.ErrUnavailable) {
			e.cache.Purge()
		}
		e.logger.Warn("engine.text_item_failed", "node_id", r.NodeID, "error", err.Error())
		return batch.Failed(r.NodeID, "Error setting text: %v", err)
	}
	stats := diff.Count(node.Text.Characters, *r.Text)
	return batch.Succeeded(r.NodeID, map[string]any{
		"originalText":   node.Text.Characters,
		"translatedText": *r.Text,
		"linesAdded":     stats.LinesAdded,
		"linesRemoved":   stats.LinesRemoved,
		"changed":        stats.Changed(),
		"fallbackUsed":   report.FallbackUsed,
	})
}
