package fontrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"canvasbridge/engine/internal/doctree"
	"canvasbridge/engine/internal/logging"
)

type Strategy string

const (
	StrategyDefault Strategy = ""
	StrategyPrevail Strategy = "prevail"
	StrategyStrict  Strategy = "strict"
	StrategySmart   Strategy = "experimental"
)

var DefaultFallback = doctree.FontName{Family: "Inter", Style: "Regular"}

func ParseStrategy(value string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(value))); s {
	case StrategyDefault, StrategyPrevail, StrategyStrict, StrategySmart:
		return s, nil
	case "smart":
		return StrategySmart, nil
	default:
		return "", fmt.Errorf("unknown smartStrategy %q", value)
	}
}

// Report describes how a rewrite resolved its fonts.
type Report struct {
	Strategy     Strategy         `json:"strategy"`
	Runs         int              `json:"runs"`
	FallbackUsed bool             `json:"fallbackUsed"`
	Font         doctree.FontName `json:"font"`
}

type Resolver struct {
	host     doctree.Host
	cache    *Cache
	fallback doctree.FontName
	logger   *slog.Logger
}

func NewResolver(host doctree.Host, cache *Cache, fallback doctree.FontName, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	if fallback.IsZero() {
		fallback = DefaultFallback
	}
	if cache == nil {
		cache, _ = NewCache(DefaultCacheSize)
	}
	return &Resolver{host: host, cache: cache, fallback: fallback, logger: logger}
}

func (r *Resolver) Fallback() doctree.FontName {
	return r.fallback
}

// SetCharacters replaces the characters of a text node, keeping its fonts
// according to strategy. A font that cannot be loaded is replaced by the
// fallback font instead of failing the node.
func (r *Resolver) SetCharacters(ctx context.Context, node doctree.Node, characters string, strategy Strategy, fallback *doctree.FontName) (Report, error) {
	if !node.IsText() {
		return Report{}, fmt.Errorf("%w: %s (type: %s)", doctree.ErrNotText, node.ID, node.Type)
	}
	fb := r.fallback
	if fallback != nil && !fallback.IsZero() {
		fb = *fallback
	}
	report := Report{Strategy: strategy}
	fontAt := r.rangeFont(node.ID)
	length := len([]rune(node.Text.Characters))

	var err error
	if node.Text.FontMixed {
		switch strategy {
		case StrategyStrict:
			return r.setStrict(ctx, node, characters, fb)
		case StrategySmart:
			return r.setSmart(ctx, node, characters, fb)
		case StrategyPrevail:
			report.Font, err = PrevailingFont(ctx, length, fontAt)
		default:
			report.Font, _, err = fontAt(ctx, 0, 1)
		}
		if err == nil {
			err = r.apply(ctx, node.ID, report.Font)
		}
	} else {
		report.Font = node.Text.Font
		err = r.cache.Load(ctx, r.host, report.Font)
	}
	if err != nil {
		r.logger.Warn("fontrun.fallback", "node_id", node.ID, "font", report.Font.Key(), "fallback", fb.Key(), "error", err.Error())
		if err := r.apply(ctx, node.ID, fb); err != nil {
			return report, err
		}
		report.Font = fb
		report.FallbackUsed = true
	}
	report.Runs = 1
	if err := r.host.SetText(ctx, node.ID, characters); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Resolver) apply(ctx context.Context, nodeID string, font doctree.FontName) error {
	if err := r.cache.Load(ctx, r.host, font); err != nil {
		return err
	}
	return r.host.SetFont(ctx, nodeID, font)
}

func (r *Resolver) rangeFont(nodeID string) RangeFontFunc {
	return func(ctx context.Context, start, end int) (doctree.FontName, bool, error) {
		return r.host.RangeFont(ctx, nodeID, start, end)
	}
}

// loadRuns loads every distinct run font plus the fallback. Runs whose font
// fails to load are moved to the fallback.
func (r *Resolver) loadRuns(ctx context.Context, nodeID string, runs []Run, fb doctree.FontName) (bool, error) {
	if err := r.cache.Load(ctx, r.host, fb); err != nil {
		return false, fmt.Errorf("load fallback font %s: %w", fb.Key(), err)
	}
	failed := map[string]bool{}
	for _, font := range DistinctFonts(runs) {
		if err := r.cache.Load(ctx, r.host, font); err != nil {
			r.logger.Warn("fontrun.fallback", "node_id", nodeID, "font", font.Key(), "fallback", fb.Key(), "error", err.Error())
			failed[font.Key()] = true
		}
	}
	for i := range runs {
		if failed[runs[i].Font.Key()] {
			runs[i].Font = fb
		}
	}
	return len(failed) > 0, nil
}

// setStrict re-applies the original runs by index. Indexes come from the old
// text, so a run past the end of a shorter replacement is rejected by the
// host and fails the node.
func (r *Resolver) setStrict(ctx context.Context, node doctree.Node, characters string, fb doctree.FontName) (Report, error) {
	report := Report{Strategy: StrategyStrict}
	oldLength := len([]rune(node.Text.Characters))
	runs, err := StrictRuns(ctx, oldLength, r.rangeFont(node.ID))
	if err != nil {
		return report, err
	}
	report.Runs = len(runs)
	if report.FallbackUsed, err = r.loadRuns(ctx, node.ID, runs, fb); err != nil {
		return report, err
	}
	if err := r.host.SetFont(ctx, node.ID, fb); err != nil {
		return report, err
	}
	if err := r.host.SetText(ctx, node.ID, characters); err != nil {
		return report, err
	}
	if newLength := len([]rune(characters)); newLength != oldLength {
		r.logger.Warn("fontrun.strict_length_mismatch", "node_id", node.ID, "old_length", oldLength, "new_length", newLength)
	}
	for _, run := range runs {
		if err := r.host.SetRangeFont(ctx, node.ID, run.Start, run.End, run.Font); err != nil {
			return report, fmt.Errorf("apply run [%d, %d): %w", run.Start, run.End, err)
		}
	}
	return report, nil
}

func (r *Resolver) setSmart(ctx context.Context, node doctree.Node, characters string, fb doctree.FontName) (Report, error) {
	report := Report{Strategy: StrategySmart}
	runs, err := SmartRuns(ctx, []rune(node.Text.Characters), r.rangeFont(node.ID))
	if err != nil {
		return report, err
	}
	report.Runs = len(runs)
	if report.FallbackUsed, err = r.loadRuns(ctx, node.ID, runs, fb); err != nil {
		return report, err
	}
	if err := r.host.SetFont(ctx, node.ID, fb); err != nil {
		return report, err
	}
	if err := r.host.SetText(ctx, node.ID, characters); err != nil {
		return report, err
	}
	for _, rg := range AnchorRuns(runs, []rune(characters)) {
		if err := r.host.SetRangeFont(ctx, node.ID, rg.Start, rg.End, rg.Font); err != nil {
			return report, fmt.Errorf("apply range [%d, %d): %w", rg.Start, rg.End, err)
		}
	}
	r.logger.Debug("fontrun.smart_applied", "node_id", node.ID, "runs", len(runs))
	return report, nil
}
