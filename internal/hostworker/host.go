package hostworker

import (
	"context"
	"errors"
	"fmt"

	"canvasbridge/engine/internal/doctree"
)

// Host adapts a worker Client to doctree.Host.
type Host struct {
	client Client
}

var _ doctree.Host = (*Host)(nil)

func NewHost(client Client) *Host {
	return &Host{client: client}
}

// Info asks the worker which host and document it is attached to.
func (h *Host) Info(ctx context.Context) (Info, error) {
	var info Info
	if err := h.client.Call(ctx, "HostGetInfo", map[string]any{}, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// wireNode is the NodeGet payload. Hosts omit visible for visible nodes.
type wireNode struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Visible  *bool           `json:"visible,omitempty"`
	Children []string        `json:"children,omitempty"`
	Bounds   *doctree.Bounds `json:"absoluteBoundingBox,omitempty"`
	Text     *doctree.Text   `json:"text,omitempty"`
}

func (w wireNode) node() doctree.Node {
	n := doctree.Node{
		ID:       w.ID,
		Name:     w.Name,
		Type:     w.Type,
		Visible:  w.Visible == nil || *w.Visible,
		Children: w.Children,
		Bounds:   w.Bounds,
		Text:     w.Text,
	}
	return n
}

func fromNode(n doctree.Node) wireNode {
	visible := n.Visible
	return wireNode{
		ID:       n.ID,
		Name:     n.Name,
		Type:     n.Type,
		Visible:  &visible,
		Children: n.Children,
		Bounds:   n.Bounds,
		Text:     n.Text,
	}
}

type nodeParams struct {
	NodeID string `json:"node_id"`
}

type rangeParams struct {
	NodeID string            `json:"node_id"`
	Start  int               `json:"start"`
	End    int               `json:"end"`
	Font   *doctree.FontName `json:"font,omitempty"`
}

type rangeFontResult struct {
	Font  doctree.FontName `json:"font"`
	Mixed bool             `json:"mixed"`
}

type fontParams struct {
	NodeID string           `json:"node_id,omitempty"`
	Font   doctree.FontName `json:"font"`
}

type textParams struct {
	NodeID     string `json:"node_id"`
	Characters string `json:"characters"`
}

func (h *Host) Node(ctx context.Context, id string) (doctree.Node, error) {
	var w wireNode
	if err := h.call(ctx, id, "NodeGet", nodeParams{NodeID: id}, &w); err != nil {
		return doctree.Node{}, err
	}
	return w.node(), nil
}

func (h *Host) DeleteNode(ctx context.Context, id string) error {
	return h.call(ctx, id, "NodeDelete", nodeParams{NodeID: id}, nil)
}

func (h *Host) RangeFont(ctx context.Context, id string, start, end int) (doctree.FontName, bool, error) {
	var res rangeFontResult
	if err := h.call(ctx, id, "TextGetRangeFont", rangeParams{NodeID: id, Start: start, End: end}, &res); err != nil {
		return doctree.FontName{}, false, err
	}
	return res.Font, res.Mixed, nil
}

func (h *Host) LoadFont(ctx context.Context, font doctree.FontName) error {
	return h.call(ctx, "", "FontLoad", fontParams{Font: font}, nil)
}

func (h *Host) SetFont(ctx context.Context, id string, font doctree.FontName) error {
	return h.call(ctx, id, "TextSetFont", fontParams{NodeID: id, Font: font}, nil)
}

func (h *Host) SetRangeFont(ctx context.Context, id string, start, end int, font doctree.FontName) error {
	return h.call(ctx, id, "TextSetRangeFont", rangeParams{NodeID: id, Start: start, End: end, Font: &font}, nil)
}

func (h *Host) SetText(ctx context.Context, id, characters string) error {
	return h.call(ctx, id, "TextSetCharacters", textParams{NodeID: id, Characters: characters}, nil)
}

// call maps remote node errors onto the doctree sentinels.
func (h *Host) call(ctx context.Context, id, method string, params, result any) error {
	err := h.client.Call(ctx, method, params, result)
	var remote *RemoteError
	if errors.As(err, &remote) {
		switch remote.Code {
		case CodeNodeNotFound:
			return fmt.Errorf("%w: %s", doctree.ErrNotFound, id)
		case CodeNotText:
			return fmt.Errorf("%w: %s", doctree.ErrNotText, id)
		}
	}
	return err
}
