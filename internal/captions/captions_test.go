package captions

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name string
		in   []RawCue
		want []RawCue
	}{
		{
			name: "empty",
			in:   nil,
			want: []RawCue{},
		},
		{
			name: "consecutive repeat absorbed",
			in:   []RawCue{{"hi", 0, 1}, {"hi", 1, 1}},
			want: []RawCue{{"hi", 0, 2}},
		},
		{
			name: "gap between repeats absorbed",
			in:   []RawCue{{"hi", 0, 1}, {"hi", 3, 0.5}},
			want: []RawCue{{"hi", 0, 3.5}},
		},
		{
			name: "run of three",
			in:   []RawCue{{"a", 1, 1}, {"a", 2, 1}, {"a", 3, 2}},
			want: []RawCue{{"a", 1, 4}},
		},
		{
			name: "non-consecutive repeat kept",
			in:   []RawCue{{"a", 0, 1}, {"b", 1, 1}, {"a", 2, 1}},
			want: []RawCue{{"a", 0, 1}, {"b", 1, 1}, {"a", 2, 1}},
		},
		{
			name: "case sensitive",
			in:   []RawCue{{"Hi", 0, 1}, {"hi", 1, 1}},
			want: []RawCue{{"Hi", 0, 1}, {"hi", 1, 1}},
		},
		{
			name: "whitespace is significant",
			in:   []RawCue{{"hi", 0, 1}, {"hi ", 1, 1}},
			want: []RawCue{{"hi", 0, 1}, {"hi ", 1, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Dedupe() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDedupe_DoesNotMutateInput(t *testing.T) {
	in := []RawCue{{"hi", 0, 1}, {"hi", 1, 1}}
	Dedupe(in)
	if in[0].Duration != 1 {
		t.Errorf("input mutated: %+v", in)
	}
}

func TestDedupe_NoConsecutiveEqualText(t *testing.T) {
	in := []RawCue{
		{"a", 0, 1}, {"a", 1, 1}, {"b", 2, 1}, {"b", 3, 1},
		{"a", 4, 1}, {"c", 5, 1}, {"c", 6, 1}, {"c", 7, 1},
	}
	out := Dedupe(in)
	for i := 1; i < len(out); i++ {
		if out[i].Text == out[i-1].Text {
			t.Errorf("entries %d and %d share text %q", i-1, i, out[i].Text)
		}
	}
	if last := out[len(out)-1]; !approx(last.End(), 8) {
		t.Errorf("last end = %v, want 8", last.End())
	}
}

func TestMergeShort(t *testing.T) {
	tests := []struct {
		name string
		in   []RawCue
		want []RawCue
	}{
		{
			name: "short first entry kept",
			in:   []RawCue{{"hello", 0, 0.3}, {"world", 0.3, 2}},
			want: []RawCue{{"hello", 0, 0.3}, {"world", 0.3, 2}},
		},
		{
			name: "short entry merged into previous",
			in:   []RawCue{{"hello", 0, 1}, {"there", 1, 0.5}},
			want: []RawCue{{"hello there", 0, 1.5}},
		},
		{
			name: "threshold is exclusive",
			in:   []RawCue{{"a", 0, 1}, {"b", 1, 0.8}},
			want: []RawCue{{"a", 0, 1}, {"b", 1, 0.8}},
		},
		{
			name: "chain of short entries folds into one",
			in:   []RawCue{{"a", 0, 1}, {"b", 1, 0.2}, {"c", 1.2, 0.3}, {"d", 1.5, 0.1}},
			want: []RawCue{{"a b c d", 0, 1.6}},
		},
		{
			name: "join inserts a space even next to whitespace",
			in:   []RawCue{{"a ", 0, 1}, {" b", 1, 0.5}},
			want: []RawCue{{"a   b", 0, 1.5}},
		},
		{
			name: "merged result not rechecked",
			in:   []RawCue{{"a", 0, 0.2}, {"b", 0.2, 0.3}},
			want: []RawCue{{"a b", 0, 0.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeShort(tt.in, DefaultMinDuration)
			if len(got) != len(tt.want) {
				t.Fatalf("MergeShort() = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i].Text != tt.want[i].Text || !approx(got[i].Start, tt.want[i].Start) || !approx(got[i].Duration, tt.want[i].Duration) {
					t.Errorf("entry %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMergeShort_CustomThreshold(t *testing.T) {
	in := []RawCue{{"a", 0, 2}, {"b", 2, 1.5}}
	got := MergeShort(in, 2)
	if len(got) != 1 || got[0].Text != "a b" {
		t.Errorf("MergeShort(threshold 2) = %+v", got)
	}
}

func TestMergeShort_Property(t *testing.T) {
	in := []RawCue{
		{"one", 0, 0.1}, {"two", 0.1, 1.2}, {"three", 1.3, 0.4},
		{"four", 1.7, 0.9}, {"five", 2.6, 0.79}, {"six", 3.39, 2},
	}
	out := MergeShort(in, DefaultMinDuration)
	for i, c := range out {
		if i == 0 {
			continue
		}
		if c.Duration < DefaultMinDuration {
			t.Errorf("entry %d duration %v below threshold", i, c.Duration)
		}
	}
}

func TestDropProgressive(t *testing.T) {
	tests := []struct {
		name string
		in   []RawCue
		want []string
	}{
		{
			name: "reveal dropped",
			in:   []RawCue{{"hello", 0, 0.3}, {"hello world", 0.3, 2}},
			want: []string{"hello world"},
		},
		{
			name: "chain collapses to last",
			in:   []RawCue{{"a", 0, 1}, {"a b", 1, 1}, {"a b c", 2, 1}},
			want: []string{"a b c"},
		},
		{
			name: "prefix without space boundary kept",
			in:   []RawCue{{"hell", 0, 1}, {"hello", 1, 1}},
			want: []string{"hell", "hello"},
		},
		{
			name: "case sensitive",
			in:   []RawCue{{"Hello", 0, 1}, {"hello world", 1, 1}},
			want: []string{"Hello", "hello world"},
		},
		{
			name: "only immediate successor checked",
			in:   []RawCue{{"a", 0, 1}, {"x", 1, 1}, {"a b", 2, 1}},
			want: []string{"a", "x", "a b"},
		},
		{
			name: "last entry always kept",
			in:   []RawCue{{"a b", 0, 1}, {"a", 1, 1}},
			want: []string{"a b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DropProgressive(tt.in)
			var texts []string
			for _, c := range got {
				texts = append(texts, c.Text)
			}
			if !reflect.DeepEqual(texts, tt.want) {
				t.Errorf("DropProgressive() texts = %q, want %q", texts, tt.want)
			}
			for i := 1; i < len(got); i++ {
				if strings.HasPrefix(got[i].Text, got[i-1].Text+" ") {
					t.Errorf("pair %d/%d still a progressive reveal", i-1, i)
				}
			}
		})
	}
}

// The survivor of a progressive reveal keeps its own timing rather than
// inheriting the dropped predecessor's earlier start. This is intended:
// "hello" at 0 followed by "hello world" at 0.3 yields a segment that
// starts at 0.3, not 0. Do not widen the survivor.
func TestDropProgressive_SuccessorTimingUnchanged(t *testing.T) {
	got := DropProgressive([]RawCue{{"a", 1, 1}, {"a b", 2, 3}})
	if len(got) != 1 || got[0].Start != 2 || got[0].Duration != 3 {
		t.Errorf("DropProgressive() = %+v, want start 2 duration 3", got)
	}
}

func TestIndex(t *testing.T) {
	segs, err := Index([]RawCue{{"a", 0, 1}, {"b", 1, 1}, {"c", 2, 1}})
	if err != nil {
		t.Fatalf("Index() error: %v", err)
	}
	for i, s := range segs {
		if s.Index != i {
			t.Errorf("segment %d has index %d", i, s.Index)
		}
	}
}

func TestIndex_Empty(t *testing.T) {
	_, err := Index(nil)
	if err == nil {
		t.Fatal("Index(nil) should fail")
	}
	if got := ReasonOf(err); got != ReasonNoCaptions {
		t.Errorf("reason = %q, want %q", got, ReasonNoCaptions)
	}
}

func TestNormalize_Examples(t *testing.T) {
	tests := []struct {
		name string
		in   []RawCue
		want []Segment
	}{
		{
			// Start stays 0.3; see TestDropProgressive_SuccessorTimingUnchanged.
			name: "progressive reveal",
			in:   []RawCue{{"hello", 0, 0.3}, {"hello world", 0.3, 2.0}},
			want: []Segment{{Text: "hello world", Start: 0.3, Duration: 2.0, Index: 0}},
		},
		{
			name: "duplicate extends duration",
			in:   []RawCue{{"hi", 0, 1.0}, {"hi", 1.0, 1.0}},
			want: []Segment{{Text: "hi", Start: 0, Duration: 2.0, Index: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize(tt.in, Options{})
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			if !reflect.DeepEqual(res.Segments, tt.want) {
				t.Errorf("Normalize() = %+v, want %+v", res.Segments, tt.want)
			}
		})
	}
}

func TestNormalize_Counts(t *testing.T) {
	in := []RawCue{
		{"so", 0, 1},
		{"so", 1, 1},
		{"today", 2, 0.2},
		{"we", 2.2, 1},
		{"we are", 3.2, 1},
		{"we are here", 4.2, 1.5},
	}
	res, err := Normalize(in, Options{})
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	want := PassCounts{Raw: 6, Deduplicated: 5, Merged: 4, Cleaned: 2}
	if res.Counts != want {
		t.Errorf("Counts = %+v, want %+v", res.Counts, want)
	}
	if res.Segments[0].Text != "so today" || !approx(res.Segments[0].Duration, 2.2) {
		t.Errorf("first segment = %+v", res.Segments[0])
	}
	if res.Segments[1].Text != "we are here" || res.Segments[1].Index != 1 {
		t.Errorf("second segment = %+v", res.Segments[1])
	}
}

func TestNormalize_Empty(t *testing.T) {
	res, err := Normalize(nil, Options{})
	if err == nil {
		t.Fatal("Normalize(nil) should fail")
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Reason != ReasonNoCaptions {
		t.Errorf("error = %v, want no_captions_found", err)
	}
	if res == nil || res.Counts.Raw != 0 {
		t.Errorf("result = %+v, want zero counts", res)
	}
}

func TestNormalize_StartsNonDecreasing(t *testing.T) {
	in := []RawCue{
		{"a", 0, 1}, {"a b", 1, 1}, {"c", 2, 0.1}, {"d", 2.1, 1},
		{"d", 3.1, 1}, {"e", 4.1, 2}, {"e f", 6.1, 2},
	}
	res, err := Normalize(in, Options{})
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	for i := 1; i < len(res.Segments); i++ {
		if res.Segments[i].Start < res.Segments[i-1].Start {
			t.Errorf("segment %d starts before segment %d", i, i-1)
		}
		if res.Segments[i].Text == res.Segments[i-1].Text {
			t.Errorf("segments %d and %d share text", i-1, i)
		}
	}
}
