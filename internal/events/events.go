// Package events provides the ordered event surface between the transfer
// supervisor and whatever frontend is driving it (CLI, GUI adapter, tests).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelworks/reeltransfer/internal/constants"
)

// EventType identifies the kind of event carried on the bus.
type EventType string

const (
	EventStateChange    EventType = "state_change"    // Supervisor state transition
	EventFileStarted    EventType = "file_started"    // Child process began a file
	EventBytesCopied    EventType = "bytes_copied"    // Byte/percentage progress tick
	EventFileError      EventType = "file_error"      // Child process reported a per-file error
	EventRetryScheduled EventType = "retry_scheduled" // Transient failure, relaunch pending
	EventCompleted      EventType = "completed"       // Terminal result produced
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// StateChangeEvent reports a supervisor state transition.
type StateChangeEvent struct {
	BaseEvent
	From string
	To   string
}

// FileStartedEvent reports that the child process started processing a file.
type FileStartedEvent struct {
	BaseEvent
	Name string // path relative to the source root
	Size int64  // bytes, 0 when the output line carried no parseable size
	Tag  string // Robocopy's classification ("New File", "Newer", ...)
}

// BytesCopiedEvent reports byte progress for the file currently in flight.
type BytesCopiedEvent struct {
	BaseEvent
	File    string
	Current int64
	Total   int64
	Percent float64
}

// FileErrorEvent reports a per-file error emitted by the child process.
type FileErrorEvent struct {
	BaseEvent
	Path    string
	Code    int
	Message string
}

// RetryScheduledEvent reports that the supervisor will relaunch the child
// after a transient failure.
type RetryScheduledEvent struct {
	BaseEvent
	Attempt  int // 1-based retry attempt about to run
	Delay    time.Duration
	ExitCode int // exit code that triggered the retry
}

// CompletedEvent reports the terminal result of a transfer.
type CompletedEvent struct {
	BaseEvent
	Outcome     string
	FilesCopied int
	BytesCopied int64
	Errors      int
	Elapsed     time.Duration
	ExitCode    int
}

// Bus manages event subscriptions and publishing. Publishing is non-blocking:
// a subscriber that stops draining its channel loses events rather than
// stalling the transfer, and the drop is counted for diagnostics. Events that
// are delivered arrive in publish order per subscriber.
type Bus struct {
	subscribers map[EventType][]chan Event
	all         []chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

// NewBus creates a new event bus with the specified subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to every event type.
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.all = append(b.all, ch)
	return ch
}

// Publish sends an event to all matching subscribers without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Unsubscribe removes a subscription channel from a specific event type.
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			subs[i] = subs[len(subs)-1]
			b.subscribers[eventType] = subs[:len(subs)-1]
			break
		}
	}
}

// UnsubscribeAll removes a channel obtained from SubscribeAll.
func (b *Bus) UnsubscribeAll(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for i, sub := range b.all {
		if sub == ch {
			b.all[i] = b.all[len(b.all)-1]
			b.all = b.all[:len(b.all)-1]
			break
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

// Dropped returns the number of events discarded because a subscriber buffer
// was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
