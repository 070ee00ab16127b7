// Package perfspan counts hardware performance events over a span of code
// in the calling process using perf_event_open(2).
//
// A Group is opened once, started once, stopped once and then read:
//
//	g, err := perfspan.OpenEvents(perfspan.EventCacheMisses, perfspan.EventCacheReferences)
//	if err != nil {
//		return err
//	}
//	defer g.Close()
//	g.Start()
//	work()
//	g.Stop()
//	fmt.Println(g.Results())
//
// A Group must only be used from one goroutine. Counting is per thread, so
// by default the goroutine is locked to its OS thread while the group is
// open.
package perfspan

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// MaxGroupSize is the largest number of events a Group accepts. Opening more
// fails with ErrGroupTooLarge.
const MaxGroupSize = 16

// Options configures which execution modes are counted.
type Options struct {
	Kernel      bool // count kernel mode
	Hypervisor  bool // count hypervisor mode
	ExcludeUser bool // do not count user mode
	// LockThread locks the calling goroutine to its OS thread from Open
	// until Close.
	LockThread bool
}

// DefaultOptions counts user mode only and locks the calling goroutine to its
// thread.
func DefaultOptions() Options {
	return Options{LockThread: true}
}

// A Request asks for one event in a group. Name, if not empty, registers a
// custom name for the event's value.
type Request struct {
	Event Event
	Name  string
}

// A Group is a set of counters opened together under one leader, the first
// counter. With more than one counter, reset, enable and disable are applied
// to the whole group at once through the leader and the values are read in a
// single grouped read.
//
// Stop is terminal: after it, Start is a no-op and a new span needs a new
// Group.
type Group struct {
	counters []*counter
	names    []string // custom name per counter, "" when unnamed
	opts     Options

	started bool
	stopped bool
	closed  bool

	readBuf []byte
}

// Open opens every requested event as one group. If any event cannot be
// opened, the counters already opened are closed and the *OpenError is
// returned.
func Open(reqs []Request, opts Options) (*Group, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyGroup
	}
	if len(reqs) > MaxGroupSize {
		return nil, fmt.Errorf("%w: %d requested", ErrGroupTooLarge, len(reqs))
	}

	g := &Group{
		counters: make([]*counter, 0, len(reqs)),
		names:    make([]string, len(reqs)),
		opts:     opts,
	}
	if opts.LockThread {
		runtime.LockOSThread()
	}
	success := false
	defer func() {
		if !success && opts.LockThread {
			runtime.UnlockOSThread()
		}
	}()

	grouped := len(reqs) > 1
	leader := -1
	for i, req := range reqs {
		c, err := openCounter(req.Event, i, leader, grouped, opts)
		if err != nil {
			return nil, multierr.Append(err, g.closeCounters())
		}
		g.counters = append(g.counters, c)
		g.names[i] = req.Name
		if leader == -1 {
			leader = c.fd
		}
	}

	if grouped {
		// nr, then a (value, id) pair per counter.
		g.readBuf = make([]byte, 8+16*len(reqs))
	} else {
		g.readBuf = make([]byte, 8)
	}

	success = true
	runtime.SetFinalizer(g, (*Group).closeCounters)
	logger.Debug("opened counter group", zap.Strings("events", g.eventNames()))
	return g, nil
}

// OpenEvent opens a group counting a single event.
func OpenEvent(e Event) (*Group, error) {
	return OpenEvents(e)
}

// OpenKind opens a group counting a single kind. rawConfig is used when kind
// is Raw.
func OpenKind(kind Kind, rawConfig uint64) (*Group, error) {
	return OpenEvent(KindEvent(kind, rawConfig))
}

// OpenEvents opens evs as one group, in order.
func OpenEvents(evs ...Event) (*Group, error) {
	reqs := make([]Request, len(evs))
	for i, e := range evs {
		reqs[i].Event = e
	}
	return Open(reqs, DefaultOptions())
}

// OpenKinds opens kinds as one group. rawConfigs[i] configures kinds[i] when
// it is Raw; missing configs are zero.
func OpenKinds(kinds []Kind, rawConfigs []uint64) (*Group, error) {
	evs := make([]Event, len(kinds))
	for i, k := range kinds {
		var config uint64
		if i < len(rawConfigs) {
			config = rawConfigs[i]
		}
		evs[i] = KindEvent(k, config)
	}
	return OpenEvents(evs...)
}

// OpenPerf opens events given directly as perf types and configs. Missing
// configs are zero.
func OpenPerf(types []uint32, configs []uint64) (*Group, error) {
	return OpenPerfNamed(types, configs, nil)
}

// OpenPerfNamed is like OpenPerf, and registers names[i] as the custom name of
// the i-th event. Events past the end of names have no custom name.
func OpenPerfNamed(types []uint32, configs []uint64, names []string) (*Group, error) {
	reqs := make([]Request, len(types))
	for i, typ := range types {
		var config uint64
		if i < len(configs) {
			config = configs[i]
		}
		reqs[i].Event = PerfEvent(typ, config)
		if i < len(names) {
			reqs[i].Name = names[i]
		}
	}
	return Open(reqs, DefaultOptions())
}

// OpenDefault opens DefaultEvents.
func OpenDefault() (*Group, error) {
	return OpenEvents(DefaultEvents...)
}

// Len returns the number of counters in the group.
func (g *Group) Len() int {
	return len(g.counters)
}

// Events returns the group's events in open order.
func (g *Group) Events() []Event {
	evs := make([]Event, len(g.counters))
	for i, c := range g.counters {
		evs[i] = c.event
	}
	return evs
}

// Started reports whether Start has been called.
func (g *Group) Started() bool {
	return g.started
}

// Stopped reports whether the span has been stopped and read.
func (g *Group) Stopped() bool {
	return g.stopped
}

// control returns the fd and ioctl argument for group wide operations.
func (g *Group) control() (int, int) {
	if len(g.counters) == 1 {
		return g.counters[0].fd, 0
	}
	return g.counters[0].fd, unix.PERF_IOC_FLAG_GROUP
}

// Start resets and enables every counter in the group at once. It does
// nothing if the group was already started.
func (g *Group) Start() error {
	if g.closed {
		return ErrClosed
	}
	if g.started {
		return nil
	}
	fd, arg := g.control()
	if err := perfIoctl(fd, unix.PERF_EVENT_IOC_RESET, arg); err != nil {
		return fmt.Errorf("perfspan: reset: %w", err)
	}
	if err := perfIoctl(fd, unix.PERF_EVENT_IOC_ENABLE, arg); err != nil {
		return fmt.Errorf("perfspan: enable: %w", err)
	}
	g.started = true
	g.stopped = false
	logger.Debug("started counter group", zap.Int("leader", fd))
	return nil
}

// Stop disables every counter in the group at once and reads their values.
// It does nothing unless the group is started and not yet stopped.
//
// A failed or short read is not an error: the affected values become zero.
// The returned error only reports a failure to disable the counters.
func (g *Group) Stop() error {
	if g.closed {
		return ErrClosed
	}
	if !g.started || g.stopped {
		return nil
	}
	fd, arg := g.control()
	var err error
	if ierr := perfIoctl(fd, unix.PERF_EVENT_IOC_DISABLE, arg); ierr != nil {
		err = fmt.Errorf("perfspan: disable: %w", ierr)
	}
	if len(g.counters) == 1 {
		g.readOne()
	} else {
		g.readGroup()
	}
	g.stopped = true
	logger.Debug("stopped counter group", zap.Int("leader", fd))
	return err
}

func (g *Group) readOne() {
	c := g.counters[0]
	n, err := readFD(c.fd, g.readBuf[:8])
	if err != nil || n != 8 {
		logger.Warn("counter read failed, reporting zero",
			zap.Stringer("event", c.event), zap.Int("bytes", n), zap.Error(err))
		c.value = 0
		return
	}
	c.value = binary.NativeEndian.Uint64(g.readBuf)
}

func (g *Group) readGroup() {
	n, err := readFD(g.counters[0].fd, g.readBuf)
	var entries []groupEntry
	if err == nil {
		entries, err = decodeGroupRead(g.readBuf[:max(n, 0)])
	}
	if err != nil {
		logger.Warn("group read failed, reporting zero",
			zap.Strings("events", g.eventNames()), zap.Int("bytes", n), zap.Error(err))
		for _, c := range g.counters {
			c.value = 0
		}
		return
	}
	g.assign(entries)
}

// assign stores each entry's value in the counter with the same kernel id.
// The kernel does not promise to return entries in open order. Counters
// without an entry keep their value.
func (g *Group) assign(entries []groupEntry) {
	for _, e := range entries {
		for _, c := range g.counters {
			if c.id == e.id {
				c.value = e.value
				break
			}
		}
	}
}

type groupEntry struct {
	value uint64
	id    uint64
}

// decodeGroupRead decodes a read of a PERF_FORMAT_GROUP|PERF_FORMAT_ID
// leader: nr followed by nr (value, id) pairs.
func decodeGroupRead(buf []byte) ([]groupEntry, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("short group read: %d bytes", len(buf))
	}
	nr := binary.NativeEndian.Uint64(buf)
	if nr > uint64(len(buf)-8)/16 {
		return nil, fmt.Errorf("short group read: %d entries in %d bytes", nr, len(buf))
	}
	entries := make([]groupEntry, nr)
	for i := range entries {
		off := 8 + 16*i
		entries[i].value = binary.NativeEndian.Uint64(buf[off:])
		entries[i].id = binary.NativeEndian.Uint64(buf[off+8:])
	}
	return entries, nil
}

// Close releases every counter regardless of the group's state. It is safe
// to call more than once.
func (g *Group) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	runtime.SetFinalizer(g, nil)
	err := g.closeCounters()
	if g.opts.LockThread {
		runtime.UnlockOSThread()
	}
	return err
}

func (g *Group) closeCounters() error {
	var err error
	// Members first, then the leader.
	for i := len(g.counters) - 1; i >= 0; i-- {
		err = multierr.Append(err, g.counters[i].close())
	}
	return err
}

func (g *Group) eventNames() []string {
	names := make([]string, len(g.counters))
	for i, c := range g.counters {
		names[i] = c.event.String()
	}
	return names
}

// Measure opens reqs, counts fn as one span and returns the results keyed by
// catalog name. The group is always closed before Measure returns.
func Measure(reqs []Request, opts Options, fn func()) (Results, error) {
	g, err := Open(reqs, opts)
	if err != nil {
		return nil, err
	}
	defer g.Close()
	if err := g.Start(); err != nil {
		return nil, err
	}
	fn()
	if err := g.Stop(); err != nil {
		return nil, err
	}
	return g.Results(), nil
}
