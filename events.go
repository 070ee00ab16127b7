package perfspan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// A Kind is a logical hardware event. The set is closed: every Kind except
// Raw maps to a generic hardware event, and Raw carries a vendor specific
// configuration in its Event.
type Kind uint8

const (
	CPUCycles Kind = iota
	Instructions
	CacheMisses
	CacheReferences
	BranchMisses
	BranchInstructions
	BusCycles
	StalledCyclesFrontend
	StalledCyclesBackend
	Raw

	numKinds
)

var hardwareKinds = [...]struct {
	name   string
	config uint64
}{
	CPUCycles:             {"CPU_CYCLES", unix.PERF_COUNT_HW_CPU_CYCLES},
	Instructions:          {"INSTRUCTIONS", unix.PERF_COUNT_HW_INSTRUCTIONS},
	CacheMisses:           {"CACHE_MISSES", unix.PERF_COUNT_HW_CACHE_MISSES},
	CacheReferences:       {"CACHE_REFERENCES", unix.PERF_COUNT_HW_CACHE_REFERENCES},
	BranchMisses:          {"BRANCH_MISSES", unix.PERF_COUNT_HW_BRANCH_MISSES},
	BranchInstructions:    {"BRANCH_INSTRUCTIONS", unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS},
	BusCycles:             {"BUS_CYCLES", unix.PERF_COUNT_HW_BUS_CYCLES},
	StalledCyclesFrontend: {"STALLED_CYCLES_FRONTEND", unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND},
	StalledCyclesBackend:  {"STALLED_CYCLES_BACKEND", unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND},
}

func (k Kind) valid() bool {
	return k < numKinds
}

func (k Kind) String() string {
	switch {
	case k == Raw:
		return "RAW"
	case k < Raw:
		return hardwareKinds[k].name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// An Event is an immutable description of something a counter can measure.
// The zero value counts CPU cycles.
type Event struct {
	kind   Kind
	typ    uint32
	config uint64
}

var (
	EventCPUCycles             = Event{kind: CPUCycles}
	EventInstructions          = Event{kind: Instructions}
	EventCacheMisses           = Event{kind: CacheMisses}
	EventCacheReferences       = Event{kind: CacheReferences}
	EventBranchMisses          = Event{kind: BranchMisses}
	EventBranchInstructions    = Event{kind: BranchInstructions}
	EventBusCycles             = Event{kind: BusCycles}
	EventStalledCyclesFrontend = Event{kind: StalledCyclesFrontend}
	EventStalledCyclesBackend  = Event{kind: StalledCyclesBackend}
)

// DefaultEvents is the starter set used by OpenDefault.
var DefaultEvents = []Event{
	EventCacheMisses,
	EventCacheReferences,
	EventBranchMisses,
	EventBranchInstructions,
}

// RawEvent returns a PMU specific event selected by config.
func RawEvent(config uint64) Event {
	return Event{kind: Raw, typ: unix.PERF_TYPE_RAW, config: config}
}

// PerfEvent returns an event of an arbitrary perf type (hardware cache,
// software, tracepoint, ...). It is named like a raw event.
func PerfEvent(typ uint32, config uint64) Event {
	return Event{kind: Raw, typ: typ, config: config}
}

// HardwareCacheEvent returns a generic cache event. cache is one of the
// PERF_COUNT_HW_CACHE_* ids, op a PERF_COUNT_HW_CACHE_OP_* and result a
// PERF_COUNT_HW_CACHE_RESULT_*.
func HardwareCacheEvent(cache, op, result uint64) Event {
	return PerfEvent(unix.PERF_TYPE_HW_CACHE, cache|op<<8|result<<16)
}

// KindEvent returns the event for kind. rawConfig is only used when kind is
// Raw.
func KindEvent(kind Kind, rawConfig uint64) Event {
	if kind == Raw {
		return RawEvent(rawConfig)
	}
	return Event{kind: kind}
}

// Kind returns the logical kind of e.
func (e Event) Kind() Kind {
	return e.kind
}

func (e Event) String() string {
	_, _, name := Resolve(e)
	return name
}

// Resolve returns the perf type and config used to open e, and its default
// display name. Raw events are named "RAW_<config>".
func Resolve(e Event) (typ uint32, config uint64, name string) {
	switch {
	case e.kind == Raw:
		return e.typ, e.config, "RAW_" + strconv.FormatUint(e.config, 10)
	case e.kind < Raw:
		hw := hardwareKinds[e.kind]
		return unix.PERF_TYPE_HARDWARE, hw.config, hw.name
	}
	return unix.PERF_TYPE_HARDWARE, 0, "UNKNOWN"
}

var hardwareEvents = map[string]Event{
	"cpu-cycles":              EventCPUCycles,
	"cycles":                  EventCPUCycles,
	"instructions":            EventInstructions,
	"cache-misses":            EventCacheMisses,
	"cache-references":        EventCacheReferences,
	"branch-misses":           EventBranchMisses,
	"branch-instructions":     EventBranchInstructions,
	"branches":                EventBranchInstructions,
	"bus-cycles":              EventBusCycles,
	"stalled-cycles-frontend": EventStalledCyclesFrontend,
	"stalled-cycles-backend":  EventStalledCyclesBackend,
}

var caches = map[string]uint64{
	"l1d":  unix.PERF_COUNT_HW_CACHE_L1D,
	"l1i":  unix.PERF_COUNT_HW_CACHE_L1I,
	"ll":   unix.PERF_COUNT_HW_CACHE_LL,
	"dtlb": unix.PERF_COUNT_HW_CACHE_DTLB,
	"itlb": unix.PERF_COUNT_HW_CACHE_ITLB,
	"bpu":  unix.PERF_COUNT_HW_CACHE_BPU,
	"node": unix.PERF_COUNT_HW_CACHE_NODE,
}

var cacheOps = map[string]uint64{
	"read":     unix.PERF_COUNT_HW_CACHE_OP_READ,
	"write":    unix.PERF_COUNT_HW_CACHE_OP_WRITE,
	"prefetch": unix.PERF_COUNT_HW_CACHE_OP_PREFETCH,
}

var cacheResults = map[string]uint64{
	"access": unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS,
	"miss":   unix.PERF_COUNT_HW_CACHE_RESULT_MISS,
}

func cacheEvents() map[string]Event {
	events := make(map[string]Event)
	for cn, c := range caches {
		for on, o := range cacheOps {
			for rn, r := range cacheResults {
				events[fmt.Sprintf("%s-%s-%s", cn, on, rn)] = HardwareCacheEvent(c, o, r)
			}
		}
	}
	return events
}

// ParseEvent converts a textual event name into an Event. Accepted forms are
// perf style hardware names (cache-misses), catalog names (CACHE_MISSES),
// cache events written cache-op-result (l1d-read-miss), raw hex configs
// (r1a8) and tracepoints (subsystem:event).
func ParseEvent(name string) (Event, error) {
	if ev, ok := hardwareEvents[name]; ok {
		return ev, nil
	}
	for k := Kind(0); k < Raw; k++ {
		if hardwareKinds[k].name == name {
			return Event{kind: k}, nil
		}
	}
	if ev, ok := cacheEvents()[name]; ok {
		return ev, nil
	}
	if strings.HasPrefix(name, "r") && len(name) > 1 {
		if config, err := strconv.ParseUint(name[1:], 16, 64); err == nil {
			return RawEvent(config), nil
		}
	}
	if strings.Contains(name, ":") {
		parts := strings.SplitN(name, ":", 2)
		return TracepointEvent(parts[0], parts[1])
	}
	return Event{}, fmt.Errorf("not found: event %s", name)
}

// HardwareEventNames returns the perf style names ParseEvent accepts for
// hardware events.
func HardwareEventNames() []string {
	names := make([]string, 0, len(hardwareEvents))
	for n := range hardwareEvents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CacheEventNames returns every cache-op-result combination ParseEvent
// accepts.
func CacheEventNames() []string {
	evs := cacheEvents()
	names := make([]string, 0, len(evs))
	for n := range evs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
