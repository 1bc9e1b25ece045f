package mpse

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the registry counters as prometheus metrics.
type Collector struct {
	reg *Registry

	instances     *prometheus.Desc
	patterns      *prometheus.Desc
	duplicates    *prometheus.Desc
	jobs          *prometheus.Desc
	matchLimit    *prometheus.Desc
	maxPatternLen *prometheus.Desc
}

// NewCollector creates a collector over the registry.
func NewCollector(reg *Registry) *Collector {
	return &Collector{
		reg: reg,
		instances: prometheus.NewDesc(
			"rxpse_instances",
			"Number of constructed pattern-matching instances.",
			nil, nil),
		patterns: prometheus.NewDesc(
			"rxpse_patterns_total",
			"Distinct patterns registered across all instances.",
			nil, nil),
		duplicates: prometheus.NewDesc(
			"rxpse_duplicate_patterns_total",
			"Pattern registrations folded into an existing pattern.",
			nil, nil),
		jobs: prometheus.NewDesc(
			"rxpse_jobs_submitted_total",
			"Search jobs submitted to the device.",
			nil, nil),
		matchLimit: prometheus.NewDesc(
			"rxpse_match_limit_exceeded_total",
			"Responses that detected more matches than they could report.",
			nil, nil),
		maxPatternLen: prometheus.NewDesc(
			"rxpse_max_pattern_length_bytes",
			"Longest raw pattern registered.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.instances
	ch <- c.patterns
	ch <- c.duplicates
	ch <- c.jobs
	ch <- c.matchLimit
	ch <- c.maxPatternLen
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.reg.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.instances, prometheus.GaugeValue, float64(snap.Instances))
	ch <- prometheus.MustNewConstMetric(c.patterns, prometheus.CounterValue, float64(snap.Patterns))
	ch <- prometheus.MustNewConstMetric(c.duplicates, prometheus.CounterValue, float64(snap.Duplicates))
	ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.CounterValue, float64(snap.JobsSubmitted))
	ch <- prometheus.MustNewConstMetric(c.matchLimit, prometheus.CounterValue, float64(snap.MatchLimitExceeded))
	ch <- prometheus.MustNewConstMetric(c.maxPatternLen, prometheus.GaugeValue, float64(snap.MaxPatternLen))
}
