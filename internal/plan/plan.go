// Package plan turns matched segments into source-relative cut instructions.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rainyday01/video-cutter/internal/catalog"
)

// ErrInvalidOffsets is returned by OffsetConfig.Validate.
var ErrInvalidOffsets = errors.New("invalid offset configuration")

const (
	MaxOffset      = 60 * time.Second
	MinMinDuration = 1 * time.Second
	MaxMinDuration = 300 * time.Second

	DefaultMinDuration = 10 * time.Second
)

// Quality selects the output bitrate relative to the source bitrate.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// ParseQuality accepts high, medium or low in any case.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityHigh, QualityMedium, QualityLow:
		return q, nil
	case "":
		return QualityHigh, nil
	default:
		return "", fmt.Errorf("unknown quality %q (want high, medium or low)", s)
	}
}

// BitrateScale is the multiplier applied to the detected source bitrate.
func (q Quality) BitrateScale() float64 {
	switch q {
	case QualityMedium:
		return 0.5
	case QualityLow:
		return 0.3
	default:
		return 1.0
	}
}

// OffsetConfig is applied uniformly to every matched segment of a run.
// A positive StartOffset moves the start earlier; a positive EndOffset
// moves the end later.
type OffsetConfig struct {
	StartOffset time.Duration `json:"start_offset"`
	EndOffset   time.Duration `json:"end_offset"`
	MinDuration time.Duration `json:"min_duration"`
}

// DefaultOffsets returns no shift and a ten second floor.
func DefaultOffsets() OffsetConfig {
	return OffsetConfig{MinDuration: DefaultMinDuration}
}

// Validate checks the offsets lie in [-60s, 60s] and the floor in [1s, 300s].
func (c OffsetConfig) Validate() error {
	if c.StartOffset < -MaxOffset || c.StartOffset > MaxOffset {
		return fmt.Errorf("%w: start offset %v outside [-60s, 60s]", ErrInvalidOffsets, c.StartOffset)
	}
	if c.EndOffset < -MaxOffset || c.EndOffset > MaxOffset {
		return fmt.Errorf("%w: end offset %v outside [-60s, 60s]", ErrInvalidOffsets, c.EndOffset)
	}
	if c.MinDuration < MinMinDuration || c.MinDuration > MaxMinDuration {
		return fmt.Errorf("%w: minimum duration %v outside [1s, 300s]", ErrInvalidOffsets, c.MinDuration)
	}
	return nil
}

// ClipPlan is one ready-to-run cut.
type ClipPlan struct {
	Index     int                `json:"index"`
	Label     string             `json:"label"`
	Row       int                `json:"row"`
	Source    catalog.SourceFile `json:"source"`
	InPoint   time.Duration      `json:"in_point"`
	Duration  time.Duration      `json:"duration"`
	Quality   Quality            `json:"quality"`
	Output    string             `json:"output,omitempty"`
	Duplicate bool               `json:"duplicate_source,omitempty"`
}

// End returns the source-relative out point.
func (p ClipPlan) End() time.Duration {
	return p.InPoint + p.Duration
}

// Plan applies the offsets and the minimum duration to a match:
//
//	start    = max(0, in_point - start_offset)
//	end      = in_point + raw_duration + end_offset
//	duration = end - start, raised to min_duration by moving the end
//
// The start is never moved back to satisfy the floor.
func Plan(m *catalog.Match, cfg OffsetConfig, q Quality) ClipPlan {
	start := m.InPoint - cfg.StartOffset
	if start < 0 {
		start = 0
	}
	end := m.InPoint + m.RawDuration + cfg.EndOffset

	duration := end - start
	if duration < cfg.MinDuration {
		duration = cfg.MinDuration
	}

	return ClipPlan{
		Label:     m.Segment.Label,
		Row:       m.Segment.Row,
		Source:    m.Source,
		InPoint:   start,
		Duration:  duration,
		Quality:   q,
		Duplicate: m.Duplicate,
	}
}
