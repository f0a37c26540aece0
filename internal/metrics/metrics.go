// Package metrics provides Prometheus metrics for storage nodes and the coordinator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Node request metrics
	nodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replistore_node_requests_total",
			Help: "Total number of requests handled by storage nodes",
		},
		[]string{"node", "action", "status"},
	)

	nodeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replistore_node_request_duration_seconds",
			Help:    "Storage node request handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	nodeRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replistore_node_running",
			Help: "1 if the node listener is up, 0 otherwise",
		},
		[]string{"node"},
	)

	nodeFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replistore_node_files",
			Help: "Number of files in the node's in-memory table",
		},
		[]string{"node"},
	)

	// Coordinator metrics
	coordinatorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replistore_coordinator_calls_total",
			Help: "Total coordinator calls to individual nodes",
		},
		[]string{"node", "op", "outcome"},
	)

	coordinatorFanoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replistore_coordinator_fanout_total",
			Help: "Fan-out operations by how many nodes accepted them",
		},
		[]string{"op", "result"},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replistore_bytes_uploaded_total",
			Help: "Total bytes accepted by storage nodes",
		},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replistore_bytes_downloaded_total",
			Help: "Total bytes served by storage nodes",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordNodeRequest records one handled request on a node.
func RecordNodeRequest(nodeID int, action string, success bool, duration time.Duration) {
	nodeRequestsTotal.WithLabelValues(strconv.Itoa(nodeID), action, status(success)).Inc()
	nodeRequestDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// SetNodeRunning sets the listener state of a node.
func SetNodeRunning(nodeID int, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	nodeRunning.WithLabelValues(strconv.Itoa(nodeID)).Set(v)
}

// SetNodeFiles sets the file count of a node.
func SetNodeFiles(nodeID, count int) {
	nodeFiles.WithLabelValues(strconv.Itoa(nodeID)).Set(float64(count))
}

// RecordUpload records bytes written into a node.
func RecordUpload(bytes int) {
	bytesUploaded.Add(float64(bytes))
}

// RecordDownload records bytes served by a node.
func RecordDownload(bytes int) {
	bytesDownloaded.Add(float64(bytes))
}

// RecordNodeCall records the outcome of one coordinator-to-node call.
func RecordNodeCall(nodeID int, op, outcome string) {
	coordinatorCallsTotal.WithLabelValues(strconv.Itoa(nodeID), op, outcome).Inc()
}

// RecordFanout records a write fan-out by how many of total nodes succeeded.
func RecordFanout(op string, succeeded, total int) {
	result := "partial"
	switch {
	case succeeded == 0:
		result = "none"
	case succeeded == total:
		result = "all"
	}
	coordinatorFanoutTotal.WithLabelValues(op, result).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
