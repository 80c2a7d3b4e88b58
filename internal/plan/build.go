package plan

import (
	"log/slog"

	"github.com/rainyday01/video-cutter/internal/catalog"
	"github.com/rainyday01/video-cutter/internal/export"
	"github.com/rainyday01/video-cutter/internal/sheet"
)

// OutputExt is the container written for every clip.
const OutputExt = ".mp4"

// Item is one segment of a run: either a plan or the reason it has none.
type Item struct {
	Index   int           `json:"index"`
	Segment sheet.Segment `json:"segment"`
	Plan    *ClipPlan     `json:"plan,omitempty"`
	Err     error         `json:"-"`
}

// Planned reports whether the item can be executed.
func (it Item) Planned() bool { return it.Plan != nil }

// Builder matches and plans every segment of a run.
type Builder struct {
	Offsets OffsetConfig
	Quality Quality
	Namer   *export.Namer
	Logger  *slog.Logger
}

// Build returns one item per segment in input order. Segments that match no
// source file are kept as failed items so they show up in the summary.
func (b *Builder) Build(segments []sheet.Segment, inv *catalog.Inventory) []Item {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	items := make([]Item, len(segments))
	for i, seg := range segments {
		items[i] = Item{Index: i, Segment: seg}

		m, err := inv.Match(seg)
		if err != nil {
			logger.Warn("segment unmatched", "label", seg.Label, "row", seg.Row, "error", err)
			items[i].Err = err
			continue
		}
		if m.Duplicate {
			logger.Warn("segment matched a duplicate start group",
				"label", seg.Label, "source", m.Source.Path)
		}

		p := Plan(m, b.Offsets, b.Quality)
		p.Index = i
		if b.Namer != nil {
			p.Output = b.Namer.Reserve(seg.Label)
		}
		items[i].Plan = &p
	}
	return items
}

// Plans returns the executable plans of items, in order.
func Plans(items []Item) []ClipPlan {
	var out []ClipPlan
	for _, it := range items {
		if it.Plan != nil {
			out = append(out, *it.Plan)
		}
	}
	return out
}

// EDLClips converts plans into edit decision list events.
func EDLClips(plans []ClipPlan) []export.Clip {
	clips := make([]export.Clip, len(plans))
	for i, p := range plans {
		clips[i] = export.Clip{
			Name:       p.Label,
			MediaPath:  p.Source.Path,
			Output:     p.Output,
			Row:        p.Row,
			RecordedAt: p.Source.Start,
			In:         p.InPoint,
			Out:        p.End(),
		}
	}
	return clips
}
