// Package captions turns the noisy cue stream produced by a caption
// source into indexed practice segments.
//
// Auto-generated captions repeat lines verbatim, emit sub-second
// fragments, and re-emit a growing sentence one fragment at a time
// ("progressive reveal"). [Normalize] cleans these artifacts with three
// ordered passes, each a pure function that allocates its own output:
//
//  1. [Dedupe] collapses consecutive cues with identical text.
//  2. [MergeShort] folds cues shorter than a threshold into their
//     predecessor.
//  3. [DropProgressive] removes cues whose text is extended by the
//     following cue.
//
// Surviving cues are then numbered by [Index]. The pipeline trusts the
// source's ordering and never re-sorts.
package captions

import "strings"

// DefaultMinDuration is the cue length, in seconds, below which
// [MergeShort] folds a cue into its predecessor.
const DefaultMinDuration = 0.8

// RawCue is one timestamped caption fragment as delivered by a source.
// Start and Duration are in seconds.
type RawCue struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the cue's end offset in seconds.
func (c RawCue) End() float64 {
	return c.Start + c.Duration
}

// Segment is a finalized practice unit. Index is its position in the
// final sequence and is only meaningful for the run that produced it.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Index    int     `json:"index"`
}

// End returns the segment's end offset in seconds.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

// Options tunes the pipeline.
type Options struct {
	// MinDuration is the short-cue threshold in seconds. Zero or a
	// negative value selects DefaultMinDuration.
	MinDuration float64
}

func (o Options) minDuration() float64 {
	if o.MinDuration <= 0 {
		return DefaultMinDuration
	}
	return o.MinDuration
}

// PassCounts records the sequence length after each stage.
type PassCounts struct {
	Raw          int `json:"raw"`
	Deduplicated int `json:"deduplicated"`
	Merged       int `json:"merged"`
	Cleaned      int `json:"cleaned"`
}

// Result is the output of [Normalize].
type Result struct {
	Segments []Segment
	Counts   PassCounts
}

// Normalize runs the full pipeline over raw. The input slice is never
// modified. An empty final sequence is reported as a [ReasonNoCaptions]
// error.
func Normalize(raw []RawCue, opts Options) (*Result, error) {
	deduped := Dedupe(raw)
	merged := MergeShort(deduped, opts.minDuration())
	cleaned := DropProgressive(merged)

	counts := PassCounts{
		Raw:          len(raw),
		Deduplicated: len(deduped),
		Merged:       len(merged),
		Cleaned:      len(cleaned),
	}

	segments, err := Index(cleaned)
	if err != nil {
		return &Result{Counts: counts}, err
	}
	return &Result{Segments: segments, Counts: counts}, nil
}

// Dedupe collapses runs of consecutive cues with byte-identical text.
// The surviving entry is stretched so that it ends where the last cue of
// the run ends, absorbing any gap between them. Only the immediately
// preceding output entry is compared, so a repeat separated by other
// text is kept.
func Dedupe(cues []RawCue) []RawCue {
	out := make([]RawCue, 0, len(cues))
	for _, cur := range cues {
		if n := len(out); n > 0 && out[n-1].Text == cur.Text {
			prev := &out[n-1]
			prev.Duration = cur.End() - prev.Start
			continue
		}
		out = append(out, cur)
	}
	return out
}

// MergeShort folds every cue shorter than minDuration into whatever
// entry is currently last in the output, joining text with a single
// space and extending the entry to the short cue's end. The threshold
// is tested against the incoming cue only; a merged entry is never
// re-evaluated. A short leading cue has nothing to merge into and is
// kept as-is.
func MergeShort(cues []RawCue, minDuration float64) []RawCue {
	out := make([]RawCue, 0, len(cues))
	for _, cur := range cues {
		if n := len(out); n > 0 && cur.Duration < minDuration {
			prev := &out[n-1]
			prev.Text = prev.Text + " " + cur.Text
			prev.Duration = cur.End() - prev.Start
			continue
		}
		out = append(out, cur)
	}
	return out
}

// DropProgressive removes each cue whose text, followed by a single
// space, prefixes the next cue's text. The kept successor's timing is
// left untouched, so it does not cover the dropped cue's earlier start.
func DropProgressive(cues []RawCue) []RawCue {
	out := make([]RawCue, 0, len(cues))
	for j, cur := range cues {
		if j+1 < len(cues) && strings.HasPrefix(cues[j+1].Text, cur.Text+" ") {
			continue
		}
		out = append(out, cur)
	}
	return out
}

// Index numbers cues by position. It fails when there is nothing left
// to practice.
func Index(cues []RawCue) ([]Segment, error) {
	if len(cues) == 0 {
		return nil, NoCaptions("no subtitles remained after cleanup", nil)
	}
	segments := make([]Segment, len(cues))
	for i, c := range cues {
		segments[i] = Segment{
			Text:     c.Text,
			Start:    c.Start,
			Duration: c.Duration,
			Index:    i,
		}
	}
	return segments, nil
}
