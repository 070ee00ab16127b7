package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/zyedidia/perfspan"
	"github.com/zyedidia/perfspan/internal/workload"
	"go.uber.org/zap"
)

func fatal(a ...interface{}) {
	fmt.Fprintln(os.Stderr, a...)
	os.Exit(1)
}

func must(desc string, err error) {
	if err != nil {
		fatal(desc, ":", err)
	}
}

func metricsWriter(w io.Writer) perfspan.MetricsWriter {
	if opts.Csv {
		return perfspan.NewCSVWriter(w)
	}
	return perfspan.NewTableWriter(w)
}

// workloadFunc returns the workload selected on the command line. Setup such
// as allocating buffers happens here, outside the measured span.
func workloadFunc(name string, size int) func() {
	switch name {
	case "stride":
		buf := workload.StrideBuffer(size << 20)
		return func() {
			workload.Stride(buf, 4*workload.CacheLine, 4)
		}
	case "sum":
		numbers := workload.Numbers(size * 1000)
		return func() {
			workload.Sum(numbers)
		}
	}
	return func() {
		workload.MatMul(size)
	}
}

func listEvents(kind string) {
	var events []string
	switch kind {
	case "hardware":
		events = perfspan.AvailableHardwareEvents()
	case "cache":
		events = perfspan.AvailableCacheEvents()
	case "trace":
		events = perfspan.AvailableTracepoints()
	default:
		fatal("error: invalid event type", kind)
	}

	if len(events) == 0 {
		fmt.Println("No events found, do you have the right permissions?")
	}
	for _, e := range events {
		fmt.Printf("[%s event]: %s\n", kind, e)
	}
}

func printRate(name string, rate float64, ok bool) {
	if !ok {
		fmt.Printf("%s miss rate: N/A\n", name)
		return
	}
	fmt.Printf("%s miss rate: %.4f%%\n", name, rate)
}

func main() {
	flagparser := flags.NewParser(&opts, flags.PassDoubleDash|flags.PrintErrors)
	flagparser.Usage = "[OPTIONS]"
	_, err := flagparser.Parse()
	if err != nil {
		os.Exit(1)
	}

	if opts.Help {
		flagparser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if opts.Version {
		fmt.Println("perfspan version", Version)
		os.Exit(0)
	}

	if opts.Verbose {
		logger, err := zap.NewDevelopment()
		must("logger", err)
		perfspan.SetLogger(logger)
		defer logger.Sync()
	}

	if opts.List != "" {
		listEvents(opts.List)
		os.Exit(0)
	}

	var reqs []perfspan.Request
	if opts.Events != "" {
		reqs, err = ParseEventList(opts.Events)
		must("event-parse", err)
	}
	for _, r := range opts.Raw {
		req, err := ParseRaw(r)
		must("raw-parse", err)
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		reqs = defaultRequests()
	}

	perfOpts := perfspan.DefaultOptions()
	perfOpts.Kernel = opts.Kernel
	perfOpts.Hypervisor = opts.Hypervisor
	perfOpts.ExcludeUser = opts.ExcludeUser

	run := workloadFunc(opts.Workload, opts.Size)

	g, err := perfspan.Open(reqs, perfOpts)
	if err != nil {
		fatal("perf-open :", err, "\nSome events may not be supported on this machine, see --list.")
	}
	defer g.Close()

	must("start", g.Start())
	run()
	must("stop", g.Stop())

	if opts.Log != "" {
		if opts.Truncate {
			if err := os.Truncate(opts.Log, 0); err != nil && !os.IsNotExist(err) {
				fatal("truncate :", err)
			}
		}
		must("log", g.LogResults(opts.Log))
	}

	if opts.Lines {
		must("print", g.PrintResults())
	} else {
		g.Render(metricsWriter(os.Stdout))
	}

	results := g.Results()
	if _, ok := results[perfspan.EventCacheReferences.String()]; ok {
		rate, ok := results.CacheMissRate()
		printRate("Cache", rate, ok)
	}
	if _, ok := results[perfspan.EventBranchInstructions.String()]; ok {
		rate, ok := results.BranchMissRate()
		printRate("Branch", rate, ok)
	}
	for prefix, rate := range g.ResultsByName().MissRates() {
		printRate(prefix, rate, true)
	}
}
