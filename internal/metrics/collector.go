package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/simtune/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// DefaultSeriesLimit bounds the points retained per metric and label set
const DefaultSeriesLimit = 10000

// Collector collects time-series metrics during an optimization run.
// Each series keeps its most recent points in a ring of fixed size and
// running totals over every point ever recorded: counts, sums, extrema,
// mean and standard deviation cover the whole run, percentiles cover the
// retained window.
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time
	limit     int

	// metric name -> label key -> series
	series map[string]map[string]*series

	// metric name -> aggregation over all label sets, dropped on write
	merged map[string]*models.Aggregation
}

// series is one metric under one label set
type series struct {
	labels map[string]string
	ring   []models.MetricPoint
	next   int // write position once the ring is full
	totals running
	cached *models.Aggregation
}

// running holds streaming statistics (Welford's algorithm)
type running struct {
	n    int64
	sum  float64
	min  float64
	max  float64
	mean float64
	m2   float64
}

func (r *running) add(v float64) {
	if r.n == 0 || v < r.min {
		r.min = v
	}
	if r.n == 0 || v > r.max {
		r.max = v
	}
	r.n++
	r.sum += v
	delta := v - r.mean
	r.mean += delta / float64(r.n)
	r.m2 += delta * (v - r.mean)
}

func (r running) merge(o running) running {
	if r.n == 0 {
		return o
	}
	if o.n == 0 {
		return r
	}
	n := r.n + o.n
	delta := o.mean - r.mean
	return running{
		n:    n,
		sum:  r.sum + o.sum,
		min:  math.Min(r.min, o.min),
		max:  math.Max(r.max, o.max),
		mean: r.mean + delta*float64(o.n)/float64(n),
		m2:   r.m2 + o.m2 + delta*delta*float64(r.n)*float64(o.n)/float64(n),
	}
}

// NewCollector creates a collector retaining DefaultSeriesLimit points per series
func NewCollector() *Collector {
	return NewCollectorWithLimit(DefaultSeriesLimit)
}

// NewCollectorWithLimit creates a collector retaining at most limit points
// per series; limit <= 0 selects DefaultSeriesLimit
func NewCollectorWithLimit(limit int) *Collector {
	if limit <= 0 {
		limit = DefaultSeriesLimit
	}
	return &Collector{
		startTime: time.Now(),
		limit:     limit,
		series:    make(map[string]map[string]*series),
		merged:    make(map[string]*models.Aggregation),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a metric value at a specific timestamp
func (c *Collector) Record(name string, value float64, timestamp time.Time, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	byLabel := c.series[name]
	if byLabel == nil {
		byLabel = make(map[string]*series)
		c.series[name] = byLabel
	}
	s := byLabel[key]
	if s == nil {
		s = &series{labels: copyLabels(labels)}
		byLabel[key] = s
	}

	point := models.MetricPoint{Timestamp: timestamp, Name: name, Value: value}
	if len(s.ring) < c.limit {
		s.ring = append(s.ring, point)
	} else {
		s.ring[s.next] = point
		s.next = (s.next + 1) % c.limit
	}
	s.totals.add(value)
	s.cached = nil
	delete(c.merged, name)
}

// RecordNow records a metric value at the current time
func (c *Collector) RecordNow(name string, value float64, labels map[string]string) {
	c.Record(name, value, time.Now(), labels)
}

// points returns the retained points oldest first
func (s *series) points() []models.MetricPoint {
	out := make([]models.MetricPoint, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

func (s *series) values() []float64 {
	out := make([]float64, 0, len(s.ring))
	for _, p := range s.points() {
		out = append(out, p.Value)
	}
	return out
}

// GetTimeSeries returns the retained points for a metric, oldest first
func (c *Collector) GetTimeSeries(name string, labels map[string]string) []*models.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.series[name][labelKey(labels)]
	if s == nil {
		return nil
	}
	pts := s.points()
	result := make([]*models.MetricPoint, len(pts))
	for i := range pts {
		p := pts[i]
		p.Labels = copyLabels(s.labels)
		result[i] = &p
	}
	return result
}

// GetAggregation returns aggregated statistics for one series
func (c *Collector) GetAggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.series[name][labelKey(labels)]
	if s == nil || s.totals.n == 0 {
		return nil
	}
	return aggregation(s.totals, s.values())
}

// GetOrComputeAggregation returns the cached aggregation of one series,
// computing it after new points were recorded
func (c *Collector) GetOrComputeAggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.series[name][labelKey(labels)]
	if s == nil || s.totals.n == 0 {
		return nil
	}
	if s.cached == nil {
		s.cached = aggregation(s.totals, s.values())
	}
	return s.cached
}

// Aggregation returns statistics over every label set of a metric, or nil
// when nothing was recorded. Results are cached until the next write.
func (c *Collector) Aggregation(name string) *models.Aggregation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergedLocked(name)
}

func (c *Collector) mergedLocked(name string) *models.Aggregation {
	if agg, ok := c.merged[name]; ok {
		return agg
	}
	var totals running
	var values []float64
	for _, s := range c.series[name] {
		totals = totals.merge(s.totals)
		values = append(values, s.values()...)
	}
	if totals.n == 0 {
		return nil
	}
	agg := aggregation(totals, values)
	c.merged[name] = agg
	return agg
}

// Count returns the number of points ever recorded for a metric
func (c *Collector) Count(name string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, s := range c.series[name] {
		n += s.totals.n
	}
	return n
}

// Duration returns the collection time, up to now while still running
func (c *Collector) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(c.startTime)
}

// GetSummary returns the retained values and whole-run aggregations of
// every metric
func (c *Collector) GetSummary() *models.MetricsSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	summary := &models.MetricsSummary{
		StartTime:    c.startTime,
		EndTime:      c.endTime,
		Duration:     end.Sub(c.startTime),
		Metrics:      make(map[string][]float64),
		Aggregations: make(map[string]*models.Aggregation),
	}

	for name, byLabel := range c.series {
		values := make([]float64, 0)
		for _, s := range byLabel {
			values = append(values, s.values()...)
		}
		summary.Metrics[name] = values
		if agg := c.mergedLocked(name); agg != nil {
			summary.Aggregations[name] = agg
		}
	}
	return summary
}

// GetMetricNames returns all metric names that have been collected
func (c *Collector) GetMetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	return names
}

// GetLabelsForMetric returns all label combinations for a metric
func (c *Collector) GetLabelsForMetric(name string) []map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.series[name] == nil {
		return nil
	}
	labelsList := make([]map[string]string, 0, len(c.series[name]))
	for _, s := range c.series[name] {
		labelsList = append(labelsList, copyLabels(s.labels))
	}
	return labelsList
}

// Values returns the retained values of a metric across all label sets,
// in recording order within each set
func (c *Collector) Values(name string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var values []float64
	for _, s := range c.series[name] {
		values = append(values, s.values()...)
	}
	return values
}

// Clear clears all collected metrics
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.series = make(map[string]map[string]*series)
	c.merged = make(map[string]*models.Aggregation)
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// labelKey creates a key from labels for map lookup
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := ""
	for _, k := range keys {
		key += k + "=" + labels[k] + ","
	}
	return key
}

// copyLabels creates a copy of the labels map
func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	copy := make(map[string]string, len(labels))
	for k, v := range labels {
		copy[k] = v
	}
	return copy
}

// aggregation combines whole-run totals with percentiles of the window
func aggregation(totals running, window []float64) *models.Aggregation {
	sort.Float64s(window)
	return &models.Aggregation{
		Count:  totals.n,
		Sum:    totals.sum,
		Min:    totals.min,
		Max:    totals.max,
		Mean:   totals.mean,
		StdDev: math.Sqrt(totals.m2 / float64(totals.n)),
		P50:    calculatePercentile(window, 0.50),
		P95:    calculatePercentile(window, 0.95),
		P99:    calculatePercentile(window, 0.99),
	}
}

// Aggregate computes count, sum, extrema, mean, standard deviation and
// percentiles of values. It returns nil for an empty slice.
func Aggregate(values []float64) *models.Aggregation {
	if len(values) == 0 {
		return nil
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean, std := stat.PopMeanStdDev(sorted, nil)

	return &models.Aggregation{
		Count:  int64(len(sorted)),
		Sum:    sum,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		StdDev: std,
		P50:    calculatePercentile(sorted, 0.50),
		P95:    calculatePercentile(sorted, 0.95),
		P99:    calculatePercentile(sorted, 0.99),
	}
}

// calculatePercentile calculates the percentile value from a sorted slice
func calculatePercentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0.0
	}
	return stat.Quantile(p, stat.LinInterp, sortedValues, nil)
}
