package sim

import (
	"fmt"
	"io"
	"time"

	"github.com/trafficlab/roadsim/pkg/stats"
)

// Result is what Run returns. Combined is only populated on the head rank.
type Result struct {
	Elapsed  time.Duration
	Ticks    int
	Combined stats.Sample
	HasStats bool
}

// Print writes the performance summary and the combined travel time
// statistics the way the head worker reports them.
func (r *Result) Print(w io.Writer) {
	elapsed := r.Elapsed.Seconds()
	fmt.Fprintln(w, "--- Simulation Performance ---")
	fmt.Fprintf(w, "total computation time: %g [s]\n", elapsed)
	if elapsed > 0 {
		fmt.Fprintf(w, "average time per iteration: %g [s]\n", elapsed/float64(r.Ticks))
		fmt.Fprintf(w, "average iterating frequency: %g [iter/s]\n", float64(r.Ticks)/elapsed)
	}
	if !r.HasStats {
		return
	}
	fmt.Fprintln(w, "--- Combined Statistics Across All Workers ---")
	fmt.Fprintf(w, "time on segment: avg=%g, std=%g, N=%d\n",
		r.Combined.Mean, r.Combined.StdDev(), int(r.Combined.Count))
}
