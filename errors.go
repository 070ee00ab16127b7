package perfspan

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
)

var (
	// ErrEmptyGroup is returned when a group is opened with no events.
	ErrEmptyGroup = errors.New("perfspan: no events requested")
	// ErrGroupTooLarge is returned when more than MaxGroupSize events are
	// requested for a single group.
	ErrGroupTooLarge = fmt.Errorf("perfspan: more than %d events in one group", MaxGroupSize)
	// ErrClosed is returned when a closed group is started or stopped.
	ErrClosed = errors.New("perfspan: group is closed")
	// ErrNotFound is returned when looking up a name that was never
	// registered with the group.
	ErrNotFound = errors.New("perfspan: event name not found")
	// ErrUnknownKind is returned when an Event carries a Kind outside the
	// catalog.
	ErrUnknownKind = errors.New("perfspan: unknown event kind")
)

// An OpenError describes a counter the kernel refused to open. Some events
// are PMU dependent and may legitimately be unsupported on the host, so
// callers are expected to handle this per group.
type OpenError struct {
	Event string // catalog name of the rejected event
	Index int    // position of the event in the requested group
	Err   error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("perf_event_open %s (event %d): %v", e.Event, e.Index, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

var paranoidPath = "/proc/sys/kernel/perf_event_paranoid"

// annotateOpenErr adds a hint when perf_event_open fails because of the
// perf_event_paranoid setting.
func annotateOpenErr(err error) error {
	if !errors.Is(err, syscall.EACCES) && !errors.Is(err, syscall.EPERM) {
		return err
	}
	data, err2 := os.ReadFile(paranoidPath)
	data = bytes.TrimSpace(data)
	if val, err3 := strconv.Atoi(string(data)); err2 != nil || err3 != nil || val > 0 {
		return fmt.Errorf("%w (consider: echo 0 | sudo tee %s)", err, paranoidPath)
	}
	return err
}
