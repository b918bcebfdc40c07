package robocopy

import (
	"regexp"
	"strconv"
	"strings"
)

// LineKind classifies a recognized output line.
type LineKind int

const (
	// LineFile announces the file the tool is about to copy, with its
	// classification tag and size in bytes.
	LineFile LineKind = iota

	// LinePercent is a bare percentage for the file currently copying.
	LinePercent

	// LineError is a timestamped ERROR line with a Win32 error code.
	LineError
)

// ParsedLine is the structured form of one recognized output line. Only the
// fields relevant to Kind are populated.
type ParsedLine struct {
	Kind LineKind

	// File lines.
	Tag  string
	Name string
	Size int64

	// Percent lines.
	Percent float64

	// Error lines.
	ErrorCode int
	Message   string
}

var (
	percentPattern = regexp.MustCompile(`^(\d{1,3}(?:\.\d+)?)%$`)
	errorPattern   = regexp.MustCompile(`^(?:\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} )?ERROR (\d+) \(0x[0-9A-Fa-f]+\)\s*(.*)$`)
)

// fileTags are the per-file classification labels the tool prints at the
// start of a file line. Order matters: longer tags first so "New File" is not
// consumed as "New".
var fileTags = []string{
	"*EXTRA File",
	"*EXTRA Dir",
	"New File",
	"New Dir",
	"Newer",
	"Older",
	"Changed",
	"Modified",
	"Tweaked",
	"lonely",
	"same",
	"attrib",
}

// ParseLine recognizes one output line and returns its structured form.
// It is pure and stateless; tracking "which file is this percentage for" is
// the caller's job. Unrecognized text returns ok=false so format drift in
// the underlying tool degrades to missing progress detail, never a failed
// transfer. Malformed numeric tokens inside an otherwise recognized line are
// dropped from the event rather than rejecting it.
func ParseLine(line string) (ParsedLine, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ParsedLine{}, false
	}

	if m := percentPattern.FindStringSubmatch(trimmed); m != nil {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil || pct > 100 {
			return ParsedLine{}, false
		}
		return ParsedLine{Kind: LinePercent, Percent: pct}, true
	}

	if m := errorPattern.FindStringSubmatch(trimmed); m != nil {
		code, err := strconv.Atoi(m[1])
		if err != nil {
			code = 0
		}
		return ParsedLine{Kind: LineError, ErrorCode: code, Message: strings.TrimSpace(m[2])}, true
	}

	for _, tag := range fileTags {
		rest, found := strings.CutPrefix(trimmed, tag)
		if !found || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return ParsedLine{}, false
		}

		parsed := ParsedLine{Kind: LineFile, Tag: tag}
		sizeToken := rest
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			sizeToken = rest[:i]
			parsed.Name = strings.TrimSpace(rest[i+1:])
		}
		if size, err := strconv.ParseInt(sizeToken, 10, 64); err == nil {
			parsed.Size = size
		} else if parsed.Name == "" {
			// Tag followed by a single non-numeric token: that token is
			// the name, not the size.
			parsed.Name = sizeToken
		} else {
			parsed.Name = rest
		}
		if parsed.Name == "" {
			return ParsedLine{}, false
		}
		return parsed, true
	}

	return ParsedLine{}, false
}
