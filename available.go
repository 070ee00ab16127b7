package perfspan

import (
	"sort"

	"acln.ro/perf"
	putils "github.com/hodgesds/perf-utils"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// IsAvailable returns true if the given event can be opened by the calling
// thread on the current system.
func IsAvailable(e Event) bool {
	if !e.kind.valid() {
		return false
	}
	typ, config, name := Resolve(e)
	attr := &perf.Attr{
		Label:  name,
		Type:   perf.EventType(typ),
		Config: config,
		Options: perf.Options{
			Disabled:          true,
			ExcludeKernel:     true,
			ExcludeHypervisor: true,
		},
	}
	ev, err := perf.Open(attr, perf.CallingThread, perf.AnyCPU, nil)
	if err != nil {
		logger.Debug("event unavailable", zap.String("event", name), zap.Error(err))
		return false
	}
	ev.Close()
	return true
}

func availableNames(names []string, events map[string]Event) []string {
	avail := make([]string, 0, len(names))
	for _, n := range names {
		if IsAvailable(events[n]) {
			avail = append(avail, n)
		}
	}
	return avail
}

// AvailableHardwareEvents returns the list of available hardware events.
func AvailableHardwareEvents() []string {
	return availableNames(HardwareEventNames(), hardwareEvents)
}

// AvailableCacheEvents returns the list of available cache events.
func AvailableCacheEvents() []string {
	return availableNames(CacheEventNames(), cacheEvents())
}

// AvailableTracepoints returns the tracepoints exposed by tracefs, written as
// subsystem:event.
func AvailableTracepoints() []string {
	evs, err := putils.AvailableEvents()
	if err != nil {
		logger.Debug("listing tracepoints", zap.Error(err))
		return nil
	}
	var names []string
	for subsystem, events := range evs {
		for _, event := range events {
			names = append(names, subsystem+":"+event)
		}
	}
	sort.Strings(names)
	return names
}

// TracepointEvent returns the event counting hits of a tracepoint. The
// tracepoint id is read from tracefs, so this fails when tracefs is not
// mounted or not readable.
func TracepointEvent(subsystem, event string) (Event, error) {
	config, err := putils.GetTracepointConfig(subsystem, event)
	if err != nil {
		return Event{}, err
	}
	return PerfEvent(unix.PERF_TYPE_TRACEPOINT, config), nil
}
