package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deletion reasons used as the "reason" label of dropbucket_buckets_deleted_total.
const (
	ReasonManual  = "manual"
	ReasonExpired = "expired"
)

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Metrics holds every Prometheus collector exported by the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec   // dropbucket_http_requests_total{method,route,status}
	RequestDuration *prometheus.HistogramVec // dropbucket_http_request_duration_seconds{method,route}

	BucketsCreated   prometheus.Counter
	BucketsDeleted   *prometheus.CounterVec // {reason}
	FilesUploaded    prometheus.Counter
	UploadedBytes    prometheus.Counter
	ShortCodeRetries prometheus.Counter

	SweepRuns       *prometheus.CounterVec // {outcome}
	CascadeFailures *prometheus.CounterVec // {step}
}

// InitMetrics registers the collectors with the default registry.
// Subsequent calls return the same instance.
func InitMetrics() *Metrics {
	return Init(prometheus.DefaultRegisterer)
}

// Init registers the collectors with registry once and returns the shared
// instance. A nil registry means the default one.
func Init(registry prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registry)
		metricsInstance = &Metrics{
			RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "dropbucket_http_requests_total",
				Help: "HTTP requests handled, by method, route and status",
			}, []string{"method", "route", "status"}),

			RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "dropbucket_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),

			BucketsCreated: factory.NewCounter(prometheus.CounterOpts{
				Name: "dropbucket_buckets_created_total",
				Help: "Buckets created",
			}),

			BucketsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "dropbucket_buckets_deleted_total",
				Help: "Buckets deleted, by reason",
			}, []string{"reason"}),

			FilesUploaded: factory.NewCounter(prometheus.CounterOpts{
				Name: "dropbucket_files_uploaded_total",
				Help: "Files stored, including re-uploads",
			}),

			UploadedBytes: factory.NewCounter(prometheus.CounterOpts{
				Name: "dropbucket_uploaded_bytes_total",
				Help: "Bytes of file content stored",
			}),

			ShortCodeRetries: factory.NewCounter(prometheus.CounterOpts{
				Name: "dropbucket_short_code_retries_total",
				Help: "Short code candidates discarded because they were already taken",
			}),

			SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "dropbucket_expiry_sweeps_total",
				Help: "Expiry sweeps, by outcome",
			}, []string{"outcome"}),

			CascadeFailures: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "dropbucket_cascade_failures_total",
				Help: "Bucket cascade deletions that stopped, by failing step",
			}, []string{"step"}),
		}
	})
	return metricsInstance
}

// Middleware records request counts and latency.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m := metricsInstance
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// BucketCreated counts a new bucket.
func BucketCreated() {
	if m := metricsInstance; m != nil {
		m.BucketsCreated.Inc()
	}
}

// BucketDeleted counts a removed bucket.
func BucketDeleted(reason string) {
	if m := metricsInstance; m != nil {
		m.BucketsDeleted.WithLabelValues(reason).Inc()
	}
}

// FileUploaded counts stored file content.
func FileUploaded(size int64) {
	if m := metricsInstance; m != nil {
		m.FilesUploaded.Inc()
		m.UploadedBytes.Add(float64(size))
	}
}

// ShortCodeRetry counts a discarded short code candidate.
func ShortCodeRetry() {
	if m := metricsInstance; m != nil {
		m.ShortCodeRetries.Inc()
	}
}

// SweepCompleted records the outcome of one expiry sweep.
func SweepCompleted(deleted, failed int, err error) {
	m := metricsInstance
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.SweepRuns.WithLabelValues("error").Inc()
	case failed > 0:
		m.SweepRuns.WithLabelValues("partial").Inc()
	default:
		m.SweepRuns.WithLabelValues("ok").Inc()
	}
}

// CascadeFailed counts a cascade that stopped at step.
func CascadeFailed(step string) {
	if m := metricsInstance; m != nil {
		m.CascadeFailures.WithLabelValues(step).Inc()
	}
}
