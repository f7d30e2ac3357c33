package hostworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"canvasbridge/engine/internal/doctree"
)

// Fake serves worker methods from an in-memory document so the engine can
// run without a design host attached.
type Fake struct {
	doc *doctree.Memory
}

var _ Client = (*Fake)(nil)

func NewFake(doc *doctree.Memory) *Fake {
	if doc == nil {
		doc = doctree.NewMemory()
	}
	return &Fake{doc: doc}
}

func (f *Fake) Document() *doctree.Memory {
	return f.doc
}

func (f *Fake) Call(ctx context.Context, method string, params any, result any) error {
	switch method {
	case "HostGetInfo":
		return assignResult(result, Info{OK: true, Host: "fake"})
	case "NodeGet":
		var p nodeParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		n, err := f.doc.Node(ctx, p.NodeID)
		if err != nil {
			return remoteErr(err)
		}
		return assignResult(result, fromNode(n))
	case "NodeDelete":
		var p nodeParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return remoteErr(f.doc.DeleteNode(ctx, p.NodeID))
	case "TextGetRangeFont":
		var p rangeParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		font, mixed, err := f.doc.RangeFont(ctx, p.NodeID, p.Start, p.End)
		if err != nil {
			return remoteErr(err)
		}
		return assignResult(result, rangeFontResult{Font: font, Mixed: mixed})
	case "FontLoad":
		var p fontParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return remoteErr(f.doc.LoadFont(ctx, p.Font))
	case "TextSetFont":
		var p fontParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return remoteErr(f.doc.SetFont(ctx, p.NodeID, p.Font))
	case "TextSetRangeFont":
		var p rangeParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		if p.Font == nil {
			return &RemoteError{Code: "INVALID_PARAMS", Message: "font is required"}
		}
		return remoteErr(f.doc.SetRangeFont(ctx, p.NodeID, p.Start, p.End, *p.Font))
	case "TextSetCharacters":
		var p textParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return remoteErr(f.doc.SetText(ctx, p.NodeID, p.Characters))
	default:
		return &RemoteError{Code: "METHOD_NOT_FOUND", Message: fmt.Sprintf("unknown method %s", method)}
	}
}

func (f *Fake) HealthCheck(context.Context) error {
	return nil
}

func (f *Fake) Close() error {
	return nil
}

// remoteErr renders err the way a worker process would report it.
func remoteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, doctree.ErrNotFound):
		return &RemoteError{Code: CodeNodeNotFound, Message: err.Error()}
	case errors.Is(err, doctree.ErrNotText):
		return &RemoteError{Code: CodeNotText, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &RemoteError{Message: err.Error()}
	}
}

func decodeParams(params any, out any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func assignResult(result any, value any) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}
