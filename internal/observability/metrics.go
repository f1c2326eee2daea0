package observability

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	unitsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bidsfs",
		Subsystem: "run",
		Name:      "units_succeeded_total",
		Help:      "Processing units completed successfully.",
	})

	unitsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bidsfs",
		Subsystem: "run",
		Name:      "units_failed_total",
		Help:      "Processing units whose pipeline invocation failed.",
	})

	subjectsExcluded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bidsfs",
		Subsystem: "run",
		Name:      "subjects_excluded_total",
		Help:      "Subjects or sessions excluded for structural reasons.",
	})

	statsLinesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bidsfs",
		Subsystem: "stats",
		Name:      "lines_skipped_total",
		Help:      "Statistics lines dropped due to parse failures.",
	})
)

func init() {
	prometheus.MustRegister(unitsSucceeded, unitsFailed, subjectsExcluded, statsLinesSkipped)
}

// RecordUnitSucceeded counts one successfully processed unit.
func RecordUnitSucceeded() { unitsSucceeded.Inc() }

// RecordUnitFailed counts one failed pipeline invocation.
func RecordUnitFailed() { unitsFailed.Inc() }

// RecordSubjectExcluded counts one structural exclusion.
func RecordSubjectExcluded() { subjectsExcluded.Inc() }

// RecordStatsLinesSkipped counts malformed statistics lines.
func RecordStatsLinesSkipped(n int) {
	if n > 0 {
		statsLinesSkipped.Add(float64(n))
	}
}

// ServeMetrics exposes the run counters on addr at /metrics in the standard
// Prometheus text format, so an operator can scrape progress during long
// runs. It returns the bound address (useful when addr requests an ephemeral
// port) and serves until the process exits.
func ServeMetrics(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.Serve(ln, mux)
	}()
	return ln.Addr().String(), nil
}
