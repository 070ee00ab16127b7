package perfspan

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
)

// Print writes a "<name>: <value>" line per counter, in open order, using
// catalog names.
func (g *Group) Print(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, c := range g.counters {
		fmt.Fprintf(bw, "%s: %d\n", c.event, c.value)
	}
	return bw.Flush()
}

// PrintResults prints the results to standard output.
func (g *Group) PrintResults() error {
	return g.Print(os.Stdout)
}

// LogResults appends the lines written by Print to the file at path,
// creating it if needed. Existing content is kept.
func (g *Group) LogResults(path string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return g.Print(f)
}
