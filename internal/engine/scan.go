package engine

import (
	"context"
	"fmt"
	"strings"

	"canvasbridge/engine/internal/batch"
	"canvasbridge/engine/internal/collector"
	"canvasbridge/engine/internal/doctree"
	"canvasbridge/engine/internal/errinfo"
	"canvasbridge/engine/internal/progress"
)

// TextNodeInfo is one entry of a scan result.
type TextNodeInfo struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Characters string  `json:"characters"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
	FontStyle  string  `json:"fontStyle"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Path       string  `json:"path"`
	Depth      int     `json:"depth"`
}

func textNodeInfo(d collector.Descriptor) TextNodeInfo {
	n := d.Node
	info := TextNodeInfo{
		ID:    n.ID,
		Name:  n.Name,
		Type:  n.Type,
		Path:  d.PathString(),
		Depth: d.Depth,
	}
	if n.Text != nil {
		info.Characters = n.Text.Characters
		info.FontSize = n.Text.FontSize
		if n.Text.FontMixed {
			info.FontFamily = "mixed"
			info.FontStyle = "mixed"
		} else {
			info.FontFamily = n.Text.Font.Family
			info.FontStyle = n.Text.Font.Style
		}
	}
	if n.Bounds != nil {
		info.X, info.Y = n.Bounds.X, n.Bounds.Y
		info.Width, info.Height = n.Bounds.Width, n.Bounds.Height
	}
	return info
}

// collectRoot walks rootID for a tracked command, failing the tracker when
// the walk fails.
func (e *Engine) collectRoot(ctx context.Context, tracker *progress.Tracker, command, rootID string) ([]collector.Descriptor, *errinfo.ErrorInfo) {
	descs, err := collector.Collect(ctx, e.host, rootID)
	if err != nil {
		errInfo := e.hostError(command, rootID, err)
		tracker.Fail(errInfo.Message(), map[string]any{"error": errInfo.Message()})
		return nil, errInfo
	}
	return descs, nil
}

func (e *Engine) scanTextNodes(ctx context.Context, c *ScanTextNodes, commandID string) (any, *errinfo.ErrorInfo) {
	runCtx, done, errInfo := e.beginRun(ctx, CmdScanTextNodes, commandID)
	if errInfo != nil {
		return nil, errInfo
	}
	defer done()

	tracker := e.reporter.Track(commandID, CmdScanTextNodes)
	tracker.Start(0, fmt.Sprintf("Starting scan of node %s", c.NodeID), nil)
	descs, errInfo := e.collectRoot(runCtx, tracker, CmdScanTextNodes, c.NodeID)
	if errInfo != nil {
		return nil, errInfo
	}

	if !c.Chunking() {
		return e.scanTextNodesAtOnce(tracker, descs, commandID), nil
	}

	opts := e.chunking(e.cfg.Scan, c.ChunkSize)
	opts.Labels = batch.Labels{
		Plan: func(total, chunks int) string {
			return fmt.Sprintf("Found %d nodes. Will process in %d chunks.", total, chunks)
		},
		ChunkDone: func(current, chunks int, o batch.Outcome) string {
			return fmt.Sprintf("Processed chunk %d/%d. Found %d text nodes so far.", current, chunks, len(textNodesOf(o.Results)))
		},
		Complete: func(o batch.Outcome) string {
			return fmt.Sprintf("Scan complete. Found %d text nodes.", len(textNodesOf(o.Results)))
		},
	}
	opts.ChunkPayload = func(o batch.Outcome, _ []batch.Result) map[string]any {
		return map[string]any{"textNodesFound": len(textNodesOf(o.Results))}
	}
	opts.CompletePayload = func(o batch.Outcome) map[string]any {
		return map[string]any{"textNodes": textNodesOf(o.Results)}
	}

	out, err := batch.Run(runCtx, tracker, descs, func(d collector.Descriptor) string { return d.Node.ID },
		func(_ context.Context, d collector.Descriptor) batch.Result {
			if !d.Node.IsText() {
				return batch.Succeeded(d.Node.ID, nil)
			}
			return batch.Succeeded(d.Node.ID, map[string]any{"textNode": textNodeInfo(d)})
		}, opts)
	if err != nil {
		return nil, errinfo.Canceled(CmdScanTextNodes, fmt.Sprintf("scan %s canceled after %d/%d chunks", commandID, out.Chunks, out.TotalChunks))
	}
	textNodes := textNodesOf(out.Results)
	return map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("Scanned %d nodes, found %d text nodes.", out.TotalItems, len(textNodes)),
		"totalNodes":     out.TotalItems,
		"processedNodes": out.Processed(),
		"chunks":         out.Chunks,
		"textNodes":      textNodes,
		"commandId":      commandID,
	}, nil
}

func (e *Engine) scanTextNodesAtOnce(tracker *progress.Tracker, descs []collector.Descriptor, commandID string) map[string]any {
	textNodes := []TextNodeInfo{}
	for _, d := range descs {
		if d.Node.IsText() {
			textNodes = append(textNodes, textNodeInfo(d))
		}
	}
	tracker.SetTotal(len(textNodes))
	message := fmt.Sprintf("Scan complete. Found %d text nodes.", len(textNodes))
	tracker.Complete(message, map[string]any{"textNodes": textNodes})
	return map[string]any{
		"success":        true,
		"message":        message,
		"totalNodes":     len(descs),
		"processedNodes": len(descs),
		"chunks":         1,
		"count":          len(textNodes),
		"textNodes":      textNodes,
		"commandId":      commandID,
	}
}

func textNodesOf(results []batch.Result) []TextNodeInfo {
	out := []TextNodeInfo{}
	for _, r := range results {
		if info, ok := r.Payload["textNode"].(TextNodeInfo); ok {
			out = append(out, info)
		}
	}
	return out
}

// MatchedNode is one entry of a scan_nodes_by_types result.
type MatchedNode struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Path   string          `json:"path"`
	Bounds *doctree.Bounds `json:"bbox,omitempty"`
}

func (e *Engine) scanNodesByTypes(ctx context.Context, c *ScanNodesByTypes, commandID string) (any, *errinfo.ErrorInfo) {
	runCtx, done, errInfo := e.beginRun(ctx, CmdScanNodesByTypes, commandID)
	if errInfo != nil {
		return nil, errInfo
	}
	defer done()

	types := strings.Join(c.Types, ", ")
	tracker := e.reporter.Track(commandID, CmdScanNodesByTypes)
	tracker.Start(0, fmt.Sprintf("Starting scan of node %s for types: %s", c.NodeID, types), nil)
	descs, errInfo := e.collectRoot(runCtx, tracker, CmdScanNodesByTypes, c.NodeID)
	if errInfo != nil {
		return nil, errInfo
	}
	matches := collector.FilterTypes(descs, c.Types)
	nodes := make([]MatchedNode, 0, len(matches))
	for _, d := range matches {
		nodes = append(nodes, MatchedNode{
			ID:     d.Node.ID,
			Name:   d.Node.Name,
			Type:   d.Node.Type,
			Path:   d.PathString(),
			Bounds: d.Node.Bounds,
		})
	}
	tracker.SetTotal(len(nodes))
	message := fmt.Sprintf("Scan complete. Found %d nodes matching types: %s", len(nodes), types)
	tracker.Complete(message, map[string]any{"matchingNodes": len(nodes)})
	return map[string]any{
		"success":       true,
		"message":       message,
		"count":         len(nodes),
		"matchingNodes": nodes,
		"searchedTypes": c.Types,
		"commandId":     commandID,
	}, nil
}
