package config

// Allocator defaults.
const (
	DefaultAllocatorShards      = 4
	DefaultHibernationThreshold = 1000
)

// Logging defaults.
const (
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultServiceName = "indexedrb"
)

// Metrics defaults.
const (
	DefaultMetricsEnabled = false
)
