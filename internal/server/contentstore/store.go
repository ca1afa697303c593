package contentstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/streamvault/internal/common"
	"github.com/dmitrijs2005/streamvault/internal/logging"
	"github.com/dmitrijs2005/streamvault/internal/server/models"
)

type blobEntry struct {
	info models.BlobInfo
}

type chunkKey struct {
	streamID   string
	chunkIndex int64
}

// Store is the content-addressed blob store. Blobs live in the backend
// keyed by their content address; metadata and the stream/user indexes are
// in-process and owned exclusively by the store.
//
// A blob is immutable once stored: Put never overwrites an existing
// address, it only inserts when absent.
type Store struct {
	backend ObjectBackend
	logger  logging.Logger
	now     func() time.Time

	mu          sync.RWMutex
	blobs       map[string]*blobEntry
	chunks      map[chunkKey]models.ChunkRef
	streams     map[string][]models.ChunkRef // ordered by chunk index
	userStreams map[string][]string          // insertion order
}

func NewStore(backend ObjectBackend, logger logging.Logger) *Store {
	return &Store{
		backend:     backend,
		logger:      logger.With("component", "contentstore"),
		now:         time.Now,
		blobs:       make(map[string]*blobEntry),
		chunks:      make(map[chunkKey]models.ChunkRef),
		streams:     make(map[string][]models.ChunkRef),
		userStreams: make(map[string][]string),
	}
}

// Put stores the blob under its content address and returns the address.
// Storing identical bytes twice yields the same address and is a no-op the
// second time.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	addr := Address(data)

	s.mu.RLock()
	_, known := s.blobs[addr]
	s.mu.RUnlock()

	if !known {
		// The in-process map is a cache; after a restart the backend may
		// already hold the blob even though the map does not.
		exists, err := s.backend.Exists(ctx, addr)
		if err != nil {
			return "", err
		}
		if !exists {
			if err := s.backend.Put(ctx, addr, data); err != nil {
				return "", err
			}
		}
	}

	s.mu.Lock()
	if _, ok := s.blobs[addr]; !ok {
		s.blobs[addr] = &blobEntry{info: models.BlobInfo{
			ContentAddress: addr,
			Size:           int64(len(data)),
			StoredAt:       s.now(),
		}}
	}
	s.mu.Unlock()

	return addr, nil
}

// PutChunk stores the blob and records it in the stream and user indexes,
// so per-stream listings are O(chunks-in-stream) lookups.
func (s *Store) PutChunk(ctx context.Context, data []byte, streamID, userID string, chunkIndex, timestampMs int64) (string, error) {
	addr, err := s.Put(ctx, data)
	if err != nil {
		return "", err
	}

	ref := models.ChunkRef{
		StreamID:       streamID,
		ChunkIndex:     chunkIndex,
		UserID:         userID,
		TimestampMs:    timestampMs,
		ContentAddress: addr,
		Size:           int64(len(data)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := chunkKey{streamID: streamID, chunkIndex: chunkIndex}
	if _, ok := s.chunks[key]; !ok {
		s.chunks[key] = ref
		s.insertChunkLocked(streamID, ref)
		s.recordUserStreamLocked(userID, streamID)
	}

	return addr, nil
}

// insertChunkLocked keeps a stream's chunk list sorted by chunk index so
// listings need no per-call sort.
func (s *Store) insertChunkLocked(streamID string, ref models.ChunkRef) {
	list := s.streams[streamID]
	i := sort.Search(len(list), func(i int) bool { return list[i].ChunkIndex >= ref.ChunkIndex })
	list = append(list, models.ChunkRef{})
	copy(list[i+1:], list[i:])
	list[i] = ref
	s.streams[streamID] = list
}

func (s *Store) recordUserStreamLocked(userID, streamID string) {
	for _, id := range s.userStreams[userID] {
		if id == streamID {
			return
		}
	}
	s.userStreams[userID] = append(s.userStreams[userID], streamID)
}

// Get returns the stored bytes. A common.ErrNotFound is a local miss, not
// proof the broader content-addressed network lacks the blob.
func (s *Store) Get(ctx context.Context, contentAddress string) ([]byte, error) {
	data, err := s.backend.Get(ctx, contentAddress)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Stat returns the store's metadata for a blob it has seen this process.
func (s *Store) Stat(contentAddress string) (*models.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.blobs[contentAddress]
	if !ok {
		return nil, common.ErrNotFound
	}
	info := entry.info
	return &info, nil
}

// Pin marks a blob as exempt from cleanup. Pinning an unknown address is a
// logged no-op, not an error.
func (s *Store) Pin(ctx context.Context, contentAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.blobs[contentAddress]
	if !ok {
		s.logger.Warn(ctx, "pin of unknown address", "address", contentAddress)
		return
	}
	entry.info.Pinned = true
}

// Unpin makes a blob eligible for cleanup again.
func (s *Store) Unpin(ctx context.Context, contentAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.blobs[contentAddress]
	if !ok {
		s.logger.Warn(ctx, "unpin of unknown address", "address", contentAddress)
		return
	}
	entry.info.Pinned = false
}

// Cleanup removes blobs older than maxAge that are not pinned and returns
// the number removed. Blobs stored while cleanup runs are never candidates:
// they are younger than any reasonable maxAge.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)

	s.mu.RLock()
	var candidates []string
	for addr, entry := range s.blobs {
		if !entry.info.Pinned && entry.info.StoredAt.Before(cutoff) {
			candidates = append(candidates, addr)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, addr := range candidates {
		// Re-check under the lock before touching the backend: a pin may
		// have arrived since the scan, and a pinned blob must survive.
		s.mu.Lock()
		entry, ok := s.blobs[addr]
		if !ok || entry.info.Pinned {
			s.mu.Unlock()
			continue
		}
		delete(s.blobs, addr)
		s.mu.Unlock()

		if err := s.backend.Delete(ctx, addr); err != nil {
			return removed, fmt.Errorf("cleanup of %s: %w", addr, err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info(ctx, "cleanup removed blobs", "count", removed)
	}
	return removed, nil
}

// ListStreamChunks returns a stream's chunks ordered by chunk index.
func (s *Store) ListStreamChunks(streamID string) []models.ChunkRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.streams[streamID]
	out := make([]models.ChunkRef, len(list))
	copy(out, list)
	return out
}

// ListUserStreams returns the IDs of streams a user has uploaded chunks for.
func (s *Store) ListUserStreams(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.userStreams[userID]
	out := make([]string, len(list))
	copy(out, list)
	return out
}
