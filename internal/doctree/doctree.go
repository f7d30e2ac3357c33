// Package doctree describes the document tree owned by the design host.
//
// The engine never holds live host objects. Every read returns a Node
// snapshot, and every mutation goes through Host by node id. Character
// offsets are rune offsets into Text.Characters.
package doctree

import (
	"context"
	"errors"
	"strings"
)

const (
	TypeDocument  = "DOCUMENT"
	TypePage      = "PAGE"
	TypeFrame     = "FRAME"
	TypeGroup     = "GROUP"
	TypeText      = "TEXT"
	TypeRectangle = "RECTANGLE"
	TypeComponent = "COMPONENT"
	TypeInstance  = "INSTANCE"
)

var (
	ErrNotFound = errors.New("node not found")
	ErrNotText  = errors.New("node is not a text node")
)

type FontName struct {
	Family string `json:"family"`
	Style  string `json:"style"`
}

// Key is the family::style identity used to compare and dedupe fonts.
func (f FontName) Key() string {
	return f.Family + "::" + f.Style
}

func (f FontName) IsZero() bool {
	return f.Family == "" && f.Style == ""
}

func ParseFontKey(key string) FontName {
	family, style, _ := strings.Cut(key, "::")
	return FontName{Family: family, Style: style}
}

type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Text struct {
	Characters string   `json:"characters"`
	FontSize   float64  `json:"fontSize"`
	Font       FontName `json:"fontName"`
	// FontMixed is set when the characters do not share one font; Font is
	// then the font of the first character.
	FontMixed bool `json:"fontMixed,omitempty"`
}

type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Visible  bool     `json:"visible"`
	Children []string `json:"children,omitempty"`
	Bounds   *Bounds  `json:"absoluteBoundingBox,omitempty"`
	Text     *Text    `json:"text,omitempty"`
}

// DisplayName is the name used in scan paths.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return "Unnamed " + n.Type
}

func (n Node) IsText() bool {
	return n.Type == TypeText && n.Text != nil
}

// Host is the narrow surface of the design host the engine depends on.
// Every call is a suspension point and may fail independently.
type Host interface {
	// Node returns a snapshot or an error wrapping ErrNotFound.
	Node(ctx context.Context, id string) (Node, error)
	DeleteNode(ctx context.Context, id string) error
	// RangeFont reports the font of [start, end) or mixed=true when the range
	// spans more than one font.
	RangeFont(ctx context.Context, id string, start, end int) (font FontName, mixed bool, err error)
	LoadFont(ctx context.Context, font FontName) error
	SetFont(ctx context.Context, id string, font FontName) error
	SetRangeFont(ctx context.Context, id string, start, end int, font FontName) error
	SetText(ctx context.Context, id, characters string) error
}
