package hostworker

import (
	"context"
	"errors"
	"testing"

	"canvasbridge/engine/internal/doctree"
)

func TestFakeHostRoundTrip(t *testing.T) {
	doc := doctree.NewMemory()
	doc.AddFrame("", "1:1", "Frame")
	doc.AddText("1:1", "1:2", "Label", "Hello", doctree.FontName{Family: "Inter", Style: "Bold"})
	doc.SetVisible("1:1", true)
	host := NewHost(NewFake(doc))
	ctx := context.Background()

	info, err := host.Info(ctx)
	if err != nil || !info.OK || info.Host != "fake" {
		t.Fatalf("unexpected info %+v %v", info, err)
	}
	frame, err := host.Node(ctx, "1:1")
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if !frame.Visible || len(frame.Children) != 1 || frame.Children[0] != "1:2" {
		t.Fatalf("unexpected frame %+v", frame)
	}
	text, err := host.Node(ctx, "1:2")
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if !text.IsText() || text.Text.Characters != "Hello" || text.Text.Font.Style != "Bold" {
		t.Fatalf("unexpected text %+v", text.Text)
	}

	font := doctree.FontName{Family: "Inter", Style: "Bold"}
	if err := host.LoadFont(ctx, font); err != nil {
		t.Fatalf("load font: %v", err)
	}
	if err := host.SetText(ctx, "1:2", "Hi there"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	italic := doctree.FontName{Family: "Inter", Style: "Italic"}
	if err := host.LoadFont(ctx, italic); err != nil {
		t.Fatalf("load font: %v", err)
	}
	if err := host.SetRangeFont(ctx, "1:2", 3, 8, italic); err != nil {
		t.Fatalf("set range font: %v", err)
	}
	got, mixed, err := host.RangeFont(ctx, "1:2", 0, 8)
	if err != nil || !mixed {
		t.Fatalf("expected mixed range, got %v %v %v", got, mixed, err)
	}
	got, mixed, err = host.RangeFont(ctx, "1:2", 3, 8)
	if err != nil || mixed || got != italic {
		t.Fatalf("expected italic range, got %v %v %v", got, mixed, err)
	}
	if err := host.SetFont(ctx, "1:2", font); err != nil {
		t.Fatalf("set font: %v", err)
	}

	if err := host.DeleteNode(ctx, "1:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := host.Node(ctx, "1:2"); !errors.Is(err, doctree.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after subtree delete, got %v", err)
	}
}

func TestFakeHostReportsInvisibleNodes(t *testing.T) {
	doc := doctree.NewMemory()
	doc.AddFrame("", "1:1", "Hidden")
	doc.SetVisible("1:1", false)
	node, err := NewHost(NewFake(doc)).Node(context.Background(), "1:1")
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if node.Visible {
		t.Fatalf("expected invisible node")
	}
}

func TestFakeHostErrors(t *testing.T) {
	doc := doctree.NewMemory()
	doc.AddFrame("", "1:1", "Frame")
	host := NewHost(NewFake(doc))
	ctx := context.Background()

	if err := host.DeleteNode(ctx, "missing"); !errors.Is(err, doctree.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := host.SetText(ctx, "1:1", "x"); !errors.Is(err, doctree.ErrNotText) {
		t.Fatalf("expected ErrNotText, got %v", err)
	}
	font := doctree.FontName{Family: "Ghost", Style: "Regular"}
	doc.FailFontLoad(font)
	var remote *RemoteError
	if err := host.LoadFont(ctx, font); !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if err := NewFake(nil).Call(ctx, "Nope", nil, nil); !errors.As(err, &remote) || remote.Code != "METHOD_NOT_FOUND" {
		t.Fatalf("expected METHOD_NOT_FOUND, got %v", err)
	}
}
