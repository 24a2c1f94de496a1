// Package metrics provides Prometheus metrics for the FileJump FUSE client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Filesystem operation metrics
	fsOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filejumpfs_fs_operations_total",
			Help: "Total number of FUSE operations by name",
		},
		[]string{"op"},
	)

	fsOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filejumpfs_fs_operation_errors_total",
			Help: "Total number of FUSE operations that returned an error",
		},
		[]string{"op"},
	)

	openHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filejumpfs_open_handles",
			Help: "Number of currently open file handles",
		},
	)

	// Listing cache metrics
	cachedListings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filejumpfs_cached_listings",
			Help: "Number of directory listings currently cached",
		},
	)

	listingFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filejumpfs_listing_fetches_total",
			Help: "Total directory listings fetched from the server",
		},
	)

	// Transfer metrics
	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filejumpfs_bytes_uploaded_total",
			Help: "Total bytes uploaded to the server",
		},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filejumpfs_bytes_downloaded_total",
			Help: "Total bytes downloaded from the server",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filejumpfs_uploads_total",
			Help: "Total upload attempts by outcome",
		},
		[]string{"status"},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filejumpfs_downloads_total",
			Help: "Total downloads by outcome",
		},
		[]string{"status"},
	)

	uploadRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filejumpfs_upload_retries_total",
			Help: "Total upload attempts retried with an escalated timeout",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOp records one FUSE operation.
func RecordOp(op string) {
	fsOperationsTotal.WithLabelValues(op).Inc()
}

// RecordOpError records a FUSE operation that returned an error.
func RecordOpError(op string) {
	fsOperationErrorsTotal.WithLabelValues(op).Inc()
}

// SetOpenHandles sets the number of open file handles.
func SetOpenHandles(count int) {
	openHandles.Set(float64(count))
}

// SetCachedListings sets the number of cached directory listings.
func SetCachedListings(count int) {
	cachedListings.Set(float64(count))
}

// RecordListingFetch records a directory listing served by the server
// rather than the cache.
func RecordListingFetch() {
	listingFetchesTotal.Inc()
}

// RecordUpload records an upload outcome ("success", "error" or
// "cancelled").
func RecordUpload(status string) {
	uploadsTotal.WithLabelValues(status).Inc()
}

// RecordDownload records a download outcome.
func RecordDownload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(status).Inc()
}

// AddBytesUploaded adds to the uploaded byte counter.
func AddBytesUploaded(n int64) {
	bytesUploaded.Add(float64(n))
}

// AddBytesDownloaded adds to the downloaded byte counter.
func AddBytesDownloaded(n int64) {
	bytesDownloaded.Add(float64(n))
}

// RecordUploadRetry records an upload attempt retried after a timeout.
func RecordUploadRetry() {
	uploadRetriesTotal.Inc()
}
