package collector

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"canvasbridge/engine/internal/doctree"
)

var inter = doctree.FontName{Family: "Inter", Style: "Regular"}

func sampleTree() *doctree.Memory {
	m := doctree.NewMemory()
	m.AddFrame("", "root", "Page")
	m.AddFrame("root", "a", "Header")
	m.AddText("a", "a1", "Title", "Hello", inter)
	m.AddText("a", "a2", "", "World", inter)
	m.AddFrame("root", "hidden", "Hidden")
	m.AddFrame("hidden", "h1", "Visible inside hidden")
	m.AddText("h1", "h2", "Deep", "nope", inter)
	m.SetVisible("hidden", false)
	m.AddText("root", "b", "Footer", "Bye", inter)
	return m
}

func TestCollectPreOrderWithPaths(t *testing.T) {
	got, err := Collect(context.Background(), sampleTree(), "root")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	var ids []string
	for _, d := range got {
		ids = append(ids, d.Node.ID)
	}
	if want := []string{"root", "a", "a1", "a2", "b"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	a2 := got[3]
	if a2.PathString() != "Page > Header > Unnamed TEXT" {
		t.Fatalf("unexpected path %q", a2.PathString())
	}
	if a2.Depth != 2 {
		t.Fatalf("expected depth 2, got %d", a2.Depth)
	}
	if got[0].Depth != 0 || len(got[0].Path) != 1 {
		t.Fatalf("root must have depth 0 and a single path entry")
	}
}

func TestCollectPrunesInvisibleSubtree(t *testing.T) {
	got, err := Collect(context.Background(), sampleTree(), "root")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, d := range got {
		switch d.Node.ID {
		case "hidden", "h1", "h2":
			t.Fatalf("node %s from invisible subtree was collected", d.Node.ID)
		}
	}
}

func TestCollectInvisibleRoot(t *testing.T) {
	m := sampleTree()
	m.SetVisible("root", false)
	got, err := Collect(context.Background(), m, "root")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing from invisible root, got %d", len(got))
	}
}

func TestCollectIsRestartable(t *testing.T) {
	m := sampleTree()
	first, err := Collect(context.Background(), m, "root")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	second, err := Collect(context.Background(), m, "root")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical descriptor sequences")
	}
}

func TestCollectRootNotFound(t *testing.T) {
	_, err := Collect(context.Background(), sampleTree(), "nope")
	if !errors.Is(err, doctree.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFilterTypes(t *testing.T) {
	got, _ := Collect(context.Background(), sampleTree(), "root")
	texts := FilterTypes(got, []string{doctree.TypeText})
	if len(texts) != 3 {
		t.Fatalf("expected 3 text nodes, got %d", len(texts))
	}
}
