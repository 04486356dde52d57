package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scribe/internal/resultcache"
)

const namespace = "scribe"

var scoreBuckets = prometheus.LinearBuckets(0, 10, 11)

// Recorder holds the scribe metric families and their registry.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	tierAttempts      *prometheus.CounterVec
	audioScore        prometheus.Histogram
	transcriptScore   prometheus.Histogram
	enhancementsTotal *prometheus.CounterVec
	correctionsTotal  *prometheus.CounterVec
}

// NewRecorder registers the scribe metric families plus the Go and process
// collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestration runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Orchestration run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		}, []string{"outcome"}),
		tierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_attempts_total",
			Help:      "Recognition attempts per tier and result.",
		}, []string{"tier", "result"}),
		audioScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_quality_score",
			Help:      "Audio quality scores of analysed inputs.",
			Buckets:   scoreBuckets,
		}),
		transcriptScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcript_quality_score",
			Help:      "Transcript quality scores of every recognition attempt.",
			Buckets:   scoreBuckets,
		}),
		enhancementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancements_total",
			Help:      "Audio enhancement passes by preset and success.",
		}, []string{"preset", "ok"}),
		correctionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "LLM correction passes by success.",
		}, []string{"ok"}),
	}
	r.registry.MustRegister(
		r.runsTotal,
		r.runDuration,
		r.tierAttempts,
		r.audioScore,
		r.transcriptScore,
		r.enhancementsTotal,
		r.correctionsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WatchCache registers a scrape-time collector over the result cache.
func (r *Recorder) WatchCache(cache CacheStatter) error {
	if cache == nil {
		return nil
	}
	return r.registry.Register(NewCacheCollector(cache))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RunFinished counts a completed run.
func (r *Recorder) RunFinished(outcome string, elapsed time.Duration) {
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// TierAttempted counts one recognition attempt.
func (r *Recorder) TierAttempted(tier, result string) {
	r.tierAttempts.WithLabelValues(tier, result).Inc()
}

// AudioScored records an audio quality score.
func (r *Recorder) AudioScored(score int) {
	r.audioScore.Observe(float64(score))
}

// TranscriptScored records the final transcript quality score.
func (r *Recorder) TranscriptScored(score int) {
	r.transcriptScore.Observe(float64(score))
}

// Enhanced counts an enhancement pass.
func (r *Recorder) Enhanced(preset string, ok bool) {
	r.enhancementsTotal.WithLabelValues(preset, strconv.FormatBool(ok)).Inc()
}

// Corrected counts a correction pass.
func (r *Recorder) Corrected(ok bool) {
	r.correctionsTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

// CacheStatter provides cache usage at scrape time.
type CacheStatter interface {
	Stats(ctx context.Context) (resultcache.Stats, error)
}

// CacheCollector implements prometheus.Collector to read cache usage at scrape time.
type CacheCollector struct {
	cache CacheStatter

	entries   *prometheus.Desc
	bytes     *prometheus.Desc
	orphans   *prometheus.Desc
	freeBytes *prometheus.Desc
}

// NewCacheCollector creates a collector over the given cache.
func NewCacheCollector(cache CacheStatter) *CacheCollector {
	return &CacheCollector{
		cache: cache,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Complete result cache entries.",
			nil, nil,
		),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "bytes"),
			"Bytes used by result cache artifacts.",
			nil, nil,
		),
		orphans: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "orphans"),
			"Fingerprints with artifacts but no metadata record.",
			nil, nil,
		),
		freeBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "free_bytes"),
			"Free bytes on the cache filesystem.",
			nil, nil,
		),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.bytes
	ch <- c.orphans
	ch <- c.freeBytes
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := c.cache.Stats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.entries, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(stats.Entries))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(stats.TotalBytes))
	ch <- prometheus.MustNewConstMetric(c.orphans, prometheus.GaugeValue, float64(stats.Orphans))
	ch <- prometheus.MustNewConstMetric(c.freeBytes, prometheus.GaugeValue, float64(stats.FreeBytes))
}
