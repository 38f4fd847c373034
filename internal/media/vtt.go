package media

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/nugget/dictation/internal/captions"
)

// timingLineRe matches VTT timing cues like "00:00:01.234 --> 00:00:03.456"
// with optional position/alignment settings after the timestamps. Hours
// are optional per the WebVTT grammar.
var timingLineRe = regexp.MustCompile(`^((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})\s+-->\s+((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})(?:\s.*)?$`)

// htmlTagRe matches markup found in VTT files (<c>, <i>, <v Speaker>, etc.).
var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// inlineTimingRe matches karaoke-style per-word timestamps such as
// "<00:00:01.520>".
var inlineTimingRe = regexp.MustCompile(`<(?:\d{2,}:)?\d{2}:\d{2}\.\d{3}>`)

// directiveRe matches cue settings that some producers leak into the
// text itself.
var directiveRe = regexp.MustCompile(`\b(?:align|position):\S*`)

// cueIDRe matches standalone numeric cue identifiers.
var cueIDRe = regexp.MustCompile(`^\d+$`)

// uuidCueIDRe matches UUID-shaped cue identifiers.
var uuidCueIDRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// blockStartRe matches the start of non-cue blocks whose contents are
// skipped up to the next blank line.
var blockStartRe = regexp.MustCompile(`^(?:NOTE|STYLE|REGION)\b`)

// ParseVTT extracts timed cues from WebVTT content.
//
// Cue identifiers, headers, and NOTE/STYLE/REGION blocks are skipped.
// Markup and inline cue settings are stripped from the text and HTML
// entities are decoded. When a cue carries any karaoke line (a line with
// inline word timestamps), only the last such line is kept and the
// cue's plain lines are dropped, even if there is a single tagged line:
// YouTube repeats the previous caption as a plain first line. Otherwise
// the cue's lines are joined with a single space.
//
// A cue with a malformed timing line is skipped; parsing continues with
// the next cue. Cues that are empty after cleaning are dropped.
func ParseVTT(raw string) []captions.RawCue {
	lines := strings.Split(raw, "\n")

	var cues []captions.RawCue
	var cur *pendingCue
	skipping := false

	flush := func() {
		if cur != nil {
			if text := cur.text(); text != "" {
				cues = append(cues, captions.RawCue{
					Text:     text,
					Start:    float64(cur.startMs) / 1000,
					Duration: float64(max(0, cur.endMs-cur.startMs)) / 1000,
				})
			}
		}
		cur = nil
	}

	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush()
			skipping = false
			continue
		}

		if m := timingLineRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			startMs, startErr := parseTimestampMs(m[1])
			endMs, endErr := parseTimestampMs(m[2])
			if startErr != nil || endErr != nil {
				skipping = true
				continue
			}
			skipping = false
			cur = &pendingCue{startMs: startMs, endMs: endMs}
			continue
		}

		// An arrow that failed the timing pattern is a broken cue header.
		if strings.Contains(trimmed, "-->") {
			flush()
			skipping = true
			continue
		}

		if skipping {
			continue
		}

		if cur == nil {
			// Outside a cue: WEBVTT header, Kind:/Language: metadata,
			// cue identifiers, and stray text are all ignored.
			if blockStartRe.MatchString(trimmed) {
				skipping = true
			}
			continue
		}

		// An identifier line directly followed by a timing line belongs
		// to the next cue, not this one.
		if isCueID(trimmed) && nextIsTiming(lines, i) {
			continue
		}

		cur.add(line)
	}
	flush()

	return cues
}

// pendingCue accumulates the text lines of the cue being parsed.
type pendingCue struct {
	startMs int
	endMs   int
	plain   []string
	karaoke []string
}

func (p *pendingCue) add(line string) {
	tagged := inlineTimingRe.MatchString(line)
	text := cleanCueText(line)
	if text == "" {
		return
	}
	if tagged {
		p.karaoke = append(p.karaoke, text)
		return
	}
	p.plain = append(p.plain, text)
}

// text returns the last karaoke line if there is one, else the plain
// lines joined.
func (p *pendingCue) text() string {
	if n := len(p.karaoke); n > 0 {
		return p.karaoke[n-1]
	}
	return strings.Join(p.plain, " ")
}

// cleanCueText strips markup and inline settings from a single text line,
// decodes entities, and collapses whitespace.
func cleanCueText(line string) string {
	line = inlineTimingRe.ReplaceAllString(line, "")
	line = htmlTagRe.ReplaceAllString(line, "")
	line = directiveRe.ReplaceAllString(line, "")
	line = html.UnescapeString(line)
	return strings.Join(strings.Fields(line), " ")
}

func isCueID(s string) bool {
	return cueIDRe.MatchString(s) || uuidCueIDRe.MatchString(s)
}

// nextIsTiming reports whether the line after lines[i] is a timing line.
func nextIsTiming(lines []string, i int) bool {
	return i+1 < len(lines) && timingLineRe.MatchString(strings.TrimSpace(lines[i+1]))
}

// parseTimestampMs parses a VTT timestamp "HH:MM:SS.mmm" or "MM:SS.mmm"
// into milliseconds. Minutes and seconds must be below 60.
func parseTimestampMs(ts string) (int, error) {
	clock, frac, ok := strings.Cut(ts, ".")
	if !ok || len(frac) != 3 {
		return 0, fmt.Errorf("timestamp %q: missing milliseconds", ts)
	}

	parts := strings.Split(clock, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("timestamp %q: want HH:MM:SS.mmm", ts)
	}

	var fields [4]int
	for i, s := range append(parts, frac) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", ts, err)
		}
		fields[i] = n
	}

	h, m, s, ms := fields[0], fields[1], fields[2], fields[3]
	if m > 59 || s > 59 {
		return 0, fmt.Errorf("timestamp %q: field out of range", ts)
	}
	return ((h*60+m)*60+s)*1000 + ms, nil
}
