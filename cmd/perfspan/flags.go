package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zyedidia/perfspan"
	"go.uber.org/multierr"
)

// Version is set with -ldflags "-X main.Version=...".
var Version = "unknown"

var opts struct {
	List        string   `short:"l" long:"list" description:"List available events for {hardware, cache, trace} event types"`
	Events      string   `short:"e" long:"events" description:"Comma-separated list of events to count as one group (default: cache-misses,cache-references,branch-misses,branch-instructions)"`
	Raw         []string `short:"r" long:"raw" description:"Raw event as 'type:config' or 'type:config=name'; may be repeated"`
	Workload    string   `short:"w" long:"workload" default:"matmul" choice:"matmul" choice:"stride" choice:"sum" description:"Workload to run inside the span"`
	Size        int      `long:"size" default:"1024" description:"Workload size: matrix dimension, stride buffer MiB, or sum length in thousands"`
	Log         string   `long:"log" description:"Append 'name: value' lines to this file"`
	Truncate    bool     `long:"truncate" description:"Truncate the log file before appending"`
	Csv         bool     `long:"csv" description:"Write results in CSV format"`
	Lines       bool     `long:"lines" description:"Write results as 'name: value' lines"`
	Kernel      bool     `long:"kernel" description:"Include kernel code in measurements"`
	Hypervisor  bool     `long:"hypervisor" description:"Include hypervisor code in measurements"`
	ExcludeUser bool     `long:"exclude-user" description:"Exclude user code from measurements"`
	Verbose     bool     `short:"V" long:"verbose" description:"Show verbose debug information"`
	Version     bool     `short:"v" long:"version" description:"Show version information"`
	Help        bool     `short:"h" long:"help" description:"Show this help message"`
}

// ParseEventList looks at a comma-separated list of events and returns one
// request per event, named as written.
func ParseEventList(s string) ([]perfspan.Request, error) {
	var reqs []perfspan.Request
	var errs []error
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ev, err := perfspan.ParseEvent(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reqs = append(reqs, perfspan.Request{Event: ev, Name: name})
	}
	return reqs, multierr.Combine(errs...)
}

// ParseRaw parses 'type:config' or 'type:config=name'. Numbers may be given
// in any base strconv understands (0x10, 16, 0o20).
func ParseRaw(s string) (perfspan.Request, error) {
	spec, name, _ := strings.Cut(s, "=")
	typStr, configStr, ok := strings.Cut(spec, ":")
	if !ok {
		return perfspan.Request{}, errors.New("invalid raw event " + strconv.Quote(s) + ": want type:config")
	}
	typ, err := strconv.ParseUint(typStr, 0, 32)
	if err != nil {
		return perfspan.Request{}, fmt.Errorf("raw event %q: type: %w", s, err)
	}
	config, err := strconv.ParseUint(configStr, 0, 64)
	if err != nil {
		return perfspan.Request{}, fmt.Errorf("raw event %q: config: %w", s, err)
	}
	return perfspan.Request{
		Event: perfspan.PerfEvent(uint32(typ), config),
		Name:  name,
	}, nil
}

func defaultRequests() []perfspan.Request {
	reqs := make([]perfspan.Request, len(perfspan.DefaultEvents))
	for i, ev := range perfspan.DefaultEvents {
		reqs[i].Event = ev
	}
	return reqs
}
