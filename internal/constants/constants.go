// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Upload constants
const (
	// MaxUploadSize is the maximum size of a multipart request body (50 MB)
	MaxUploadSize = 50 << 20

	// MaxMemoryMultipart is how much of a multipart body is kept in memory before spilling to disk
	MaxMemoryMultipart = 32 << 20

	// MaxSelfieSize is the maximum size of a decoded selfie image
	MaxSelfieSize = 10 << 20

	// UploadField is the multipart field carrying event photos
	UploadField = "photos"

	// SelfieField is the multipart field carrying a selfie
	SelfieField = "selfie"
)

// Backpressure constants
const (
	// RetryAfterSeconds is sent with 503 responses when the ingestion queue is full
	RetryAfterSeconds = "5"
)

// Job constants
const (
	// EventChannelBuffer is the buffer size for SSE event channels
	EventChannelBuffer = 100

	// JobRetention is how long finished jobs stay queryable, in minutes
	JobRetention = 60
)

// CLI constants
const (
	// DefaultIngestBatch is how many files the ingest command sends to the engine at once
	DefaultIngestBatch = 16
)
