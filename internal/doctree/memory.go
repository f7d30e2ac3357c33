package doctree

import (
	"context"
	"fmt"
	"sync"
)

type memNode struct {
	node   Node
	parent string
	chars  []rune
	fonts  []FontName
	font   FontName
}

// Memory is an in-process Host used by tests and the fake host mode.
// Mutations require the target fonts to have been loaded, mirroring hosts
// that refuse to edit text with unloaded fonts.
type Memory struct {
	mu          sync.Mutex
	nodes       map[string]*memNode
	loaded      map[string]bool
	failLoads   map[string]bool
	failDeletes map[string]error
	loadCalls   int
}

func NewMemory() *Memory {
	return &Memory{
		nodes:       make(map[string]*memNode),
		loaded:      make(map[string]bool),
		failLoads:   make(map[string]bool),
		failDeletes: make(map[string]error),
	}
}

// Add inserts n under parentID. An empty parentID adds a root.
func (m *Memory) Add(parentID string, n Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.Children = nil
	entry := &memNode{node: n, parent: parentID}
	if n.Text != nil {
		entry.chars = []rune(n.Text.Characters)
		entry.font = n.Text.Font
		entry.fonts = make([]FontName, len(entry.chars))
		for i := range entry.fonts {
			entry.fonts[i] = n.Text.Font
		}
	}
	m.nodes[n.ID] = entry
	if parent, ok := m.nodes[parentID]; ok {
		parent.node.Children = append(parent.node.Children, n.ID)
	}
}

func (m *Memory) AddFrame(parentID, id, name string) {
	m.Add(parentID, Node{ID: id, Name: name, Type: TypeFrame, Visible: true})
}

func (m *Memory) AddText(parentID, id, name, characters string, font FontName) {
	m.Add(parentID, Node{
		ID:      id,
		Name:    name,
		Type:    TypeText,
		Visible: true,
		Bounds:  &Bounds{Width: 100, Height: 20},
		Text:    &Text{Characters: characters, FontSize: 14, Font: font},
	})
}

// Paint assigns font to [start, end) without any load check.
func (m *Memory) Paint(id string, start, end int, font FontName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.nodes[id]
	if !ok {
		return
	}
	for i := start; i < end && i < len(entry.fonts); i++ {
		entry.fonts[i] = font
	}
}

func (m *Memory) SetVisible(id string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.nodes[id]; ok {
		entry.node.Visible = visible
	}
}

func (m *Memory) FailFontLoad(font FontName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoads[font.Key()] = true
}

func (m *Memory) FailDelete(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDeletes[id] = err
}

// Fonts returns the per-character fonts of a text node.
func (m *Memory) Fonts(id string) []FontName {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.nodes[id]
	if !ok {
		return nil
	}
	out := make([]FontName, len(entry.fonts))
	copy(out, entry.fonts)
	return out
}

func (m *Memory) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

func (m *Memory) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[id]
	return ok
}

func (m *Memory) Node(ctx context.Context, id string) (Node, error) {
	if err := ctx.Err(); err != nil {
		return Node{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry.snapshot(), nil
}

func (e *memNode) snapshot() Node {
	n := e.node
	n.Children = append([]string(nil), e.node.Children...)
	if e.node.Bounds != nil {
		b := *e.node.Bounds
		n.Bounds = &b
	}
	if e.node.Text != nil {
		text := *e.node.Text
		text.Characters = string(e.chars)
		text.Font = e.font
		text.FontMixed = false
		if len(e.fonts) > 0 {
			text.Font = e.fonts[0]
			for _, f := range e.fonts[1:] {
				if f != e.fonts[0] {
					text.FontMixed = true
					break
				}
			}
		}
		n.Text = &text
	}
	return n
}

func (m *Memory) DeleteNode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := m.failDeletes[id]; err != nil {
		return err
	}
	if parent, ok := m.nodes[entry.parent]; ok {
		kept := parent.node.Children[:0]
		for _, child := range parent.node.Children {
			if child != id {
				kept = append(kept, child)
			}
		}
		parent.node.Children = kept
	}
	m.removeLocked(id)
	return nil
}

func (m *Memory) removeLocked(id string) {
	entry, ok := m.nodes[id]
	if !ok {
		return
	}
	for _, child := range entry.node.Children {
		m.removeLocked(child)
	}
	delete(m.nodes, id)
}

func (m *Memory) RangeFont(ctx context.Context, id string, start, end int) (FontName, bool, error) {
	if err := ctx.Err(); err != nil {
		return FontName{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.textLocked(id)
	if err != nil {
		return FontName{}, false, err
	}
	if start < 0 || end > len(entry.fonts) || start >= end {
		return FontName{}, false, fmt.Errorf("range [%d, %d) out of bounds for %d characters", start, end, len(entry.fonts))
	}
	first := entry.fonts[start]
	for _, f := range entry.fonts[start+1 : end] {
		if f != first {
			return FontName{}, true, nil
		}
	}
	return first, false, nil
}

func (m *Memory) LoadFont(ctx context.Context, font FontName) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if m.failLoads[font.Key()] {
		return fmt.Errorf("font %q %q is not available", font.Family, font.Style)
	}
	m.loaded[font.Key()] = true
	return nil
}

func (m *Memory) SetFont(ctx context.Context, id string, font FontName) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.textLocked(id)
	if err != nil {
		return err
	}
	if !m.loaded[font.Key()] {
		return fmt.Errorf("font %s must be loaded before use", font.Key())
	}
	entry.font = font
	for i := range entry.fonts {
		entry.fonts[i] = font
	}
	return nil
}

func (m *Memory) SetRangeFont(ctx context.Context, id string, start, end int, font FontName) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.textLocked(id)
	if err != nil {
		return err
	}
	if !m.loaded[font.Key()] {
		return fmt.Errorf("font %s must be loaded before use", font.Key())
	}
	if start < 0 || end > len(entry.fonts) || start >= end {
		return fmt.Errorf("range [%d, %d) out of bounds for %d characters", start, end, len(entry.fonts))
	}
	for i := start; i < end; i++ {
		entry.fonts[i] = font
	}
	return nil
}

// SetText replaces the characters; new characters take the first
// character's font, or the node font when the node was empty.
func (m *Memory) SetText(ctx context.Context, id, characters string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.textLocked(id)
	if err != nil {
		return err
	}
	font := entry.font
	if len(entry.fonts) > 0 {
		font = entry.fonts[0]
	}
	for _, f := range entry.fonts {
		if !m.loaded[f.Key()] {
			return fmt.Errorf("font %s must be loaded before editing characters", f.Key())
		}
	}
	if !m.loaded[font.Key()] {
		return fmt.Errorf("font %s must be loaded before editing characters", font.Key())
	}
	entry.chars = []rune(characters)
	entry.font = font
	entry.fonts = make([]FontName, len(entry.chars))
	for i := range entry.fonts {
		entry.fonts[i] = font
	}
	return nil
}

func (m *Memory) textLocked(id string) (*memNode, error) {
	entry, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if entry.node.Text == nil {
		return nil, fmt.Errorf("%w: %s (type: %s)", ErrNotText, id, entry.node.Type)
	}
	return entry, nil
}
