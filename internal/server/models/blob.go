package models

import "time"

// BlobInfo is the content store's metadata for one stored blob.
type BlobInfo struct {
	ContentAddress string
	Size           int64
	StoredAt       time.Time
	Pinned         bool
}

// ChunkRef links a stored blob to its place in a stream. The content store
// keeps these in its stream/user indexes so per-stream chunk listings don't
// require a full scan.
type ChunkRef struct {
	StreamID       string
	ChunkIndex     int64
	UserID         string
	TimestampMs    int64
	ContentAddress string
	Size           int64
}
