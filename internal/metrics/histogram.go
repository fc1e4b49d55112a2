package metrics

import (
	"database/sql"
	"fmt"
	"time"
)

// Operation names recorded by the loop
const (
	OpGenerator  = "generator"
	OpBuildCheck = "buildcheck"
)

// LatencyBuckets defines histogram buckets in milliseconds
var LatencyBuckets = []int{50, 100, 500, 1000, 5000, 15000, 60000, 300000}

// Histogram records operation latencies into the history database in
// one-minute windows
type Histogram struct {
	db *sql.DB
}

// NewHistogram creates a histogram backed by db. A nil db disables
// recording.
func NewHistogram(db *sql.DB) *Histogram {
	return &Histogram{db: db}
}

// RecordLatency records one latency measurement for an operation
func (h *Histogram) RecordLatency(operation string, latencyMs int) error {
	if h.db == nil {
		return nil
	}
	bucket := findBucket(latencyMs)
	timestamp := time.Now().Unix() / 60 * 60

	_, err := h.db.Exec(`
		INSERT INTO latency_histogram (operation, bucket_ms, count, timestamp)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(operation, bucket_ms, timestamp)
		DO UPDATE SET count = count + 1
	`, operation, bucket, timestamp)

	return err
}

// findBucket finds the appropriate bucket for a latency value
func findBucket(latencyMs int) int {
	for _, bucket := range LatencyBuckets {
		if latencyMs <= bucket {
			return bucket
		}
	}
	return LatencyBuckets[len(LatencyBuckets)-1]
}

// Percentiles holds calculated percentile values for one operation
type Percentiles struct {
	Operation string
	P50       int
	P95       int
	Count     int
}

// CalculatePercentiles computes p50 and p95 for an operation over the
// trailing window
func (h *Histogram) CalculatePercentiles(operation string, windowMinutes int) (*Percentiles, error) {
	if h.db == nil {
		return nil, fmt.Errorf("no database attached")
	}
	windowStart := time.Now().Unix()/60*60 - int64(windowMinutes*60)

	rows, err := h.db.Query(`
		SELECT bucket_ms, SUM(count)
		FROM latency_histogram
		WHERE operation = ? AND timestamp >= ?
		GROUP BY bucket_ms
		ORDER BY bucket_ms ASC
	`, operation, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query histogram: %w", err)
	}
	defer rows.Close()

	var buckets []bucketCount
	total := 0
	for rows.Next() {
		var bc bucketCount
		if err := rows.Scan(&bc.bucket, &bc.count); err != nil {
			return nil, err
		}
		buckets = append(buckets, bc)
		total += bc.count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, fmt.Errorf("no data available for operation %s", operation)
	}

	return &Percentiles{
		Operation: operation,
		P50:       percentileBucket(buckets, total, 0.50),
		P95:       percentileBucket(buckets, total, 0.95),
		Count:     total,
	}, nil
}

type bucketCount struct {
	bucket int
	count  int
}

// percentileBucket returns the upper bound of the bucket containing
// the requested percentile
func percentileBucket(buckets []bucketCount, total int, percentile float64) int {
	target := int(float64(total)*percentile + 0.5)
	if target < 1 {
		target = 1
	}
	cumulative := 0
	for _, bc := range buckets {
		cumulative += bc.count
		if cumulative >= target {
			return bc.bucket
		}
	}
	return buckets[len(buckets)-1].bucket
}
