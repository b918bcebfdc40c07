package supervisor

import (
	"strings"

	"github.com/reelworks/reeltransfer/internal/events"
	"github.com/reelworks/reeltransfer/internal/robocopy"
)

// copyTags are the file-line classifications that mean the child is about to
// write this file to the destination. "same" and the *EXTRA tags describe
// files the child is not copying.
var copyTags = map[string]bool{
	"New File": true,
	"Newer":    true,
	"Older":    true,
	"Changed":  true,
	"Modified": true,
	"Tweaked":  true,
}

// accumulator folds the child's output lines into transfer counters and
// progress events. The parser itself is stateless; this is where "which file
// does that percentage belong to" lives. One accumulator spans all retry
// attempts of a transfer so counters stay cumulative.
type accumulator struct {
	bus   *events.Bus
	total int64

	filesCopied int
	bytesCopied int64
	errors      []FileError

	currentName string
	currentSize int64
	inFlight    bool
}

func newAccumulator(bus *events.Bus, total int64) *accumulator {
	return &accumulator{bus: bus, total: total}
}

func (a *accumulator) consume(line string) {
	parsed, ok := robocopy.ParseLine(line)
	if !ok {
		return
	}

	switch parsed.Kind {
	case robocopy.LineFile:
		if !copyTags[parsed.Tag] {
			return
		}
		// A new file line means the previous one finished; the tool
		// prints them strictly in copy order.
		a.finalizeCurrent()
		a.currentName = parsed.Name
		a.currentSize = parsed.Size
		a.inFlight = true
		a.bus.Publish(&events.FileStartedEvent{
			BaseEvent: events.NewBaseEvent(events.EventFileStarted),
			Name:      parsed.Name,
			Size:      parsed.Size,
			Tag:       parsed.Tag,
		})

	case robocopy.LinePercent:
		if !a.inFlight {
			return
		}
		partial := int64(float64(a.currentSize) * parsed.Percent / 100)
		a.bus.Publish(&events.BytesCopiedEvent{
			BaseEvent: events.NewBaseEvent(events.EventBytesCopied),
			File:      a.currentName,
			Current:   a.bytesCopied + partial,
			Total:     a.total,
			Percent:   parsed.Percent,
		})
		if parsed.Percent >= 100 {
			a.finalizeCurrent()
		}

	case robocopy.LineError:
		path := errorPath(parsed.Message)
		a.errors = append(a.errors, FileError{
			Path:    path,
			Code:    parsed.ErrorCode,
			Message: parsed.Message,
		})
		a.bus.Publish(&events.FileErrorEvent{
			BaseEvent: events.NewBaseEvent(events.EventFileError),
			Path:      path,
			Code:      parsed.ErrorCode,
			Message:   parsed.Message,
		})
	}
}

// errorPath extracts the path operand from an ERROR line message, which the
// tool prints as "<operation words> <path>". The path starts at the first
// token carrying a path separator and runs to the end of the message, since
// paths may contain spaces. Empty when no token looks like a path.
func errorPath(msg string) string {
	offset := 0
	for offset < len(msg) {
		rest := msg[offset:]
		end := strings.IndexAny(rest, " \t")
		tok := rest
		if end >= 0 {
			tok = rest[:end]
		}
		if strings.ContainsAny(tok, `/\`) {
			return msg[offset:]
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return ""
}

// finalizeCurrent credits the in-flight file as fully copied. Called on the
// next file line, a 100% tick, or a successful exit, whichever comes first.
func (a *accumulator) finalizeCurrent() {
	if !a.inFlight {
		return
	}
	a.filesCopied++
	a.bytesCopied += a.currentSize
	a.inFlight = false
}
