// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package knowledge implements the token-bounded document store: chunking,
// deduplication, FIFO eviction and the commit protocol that keeps the vector
// index, the catalog and the in-memory counters consistent.
package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/chunkstore/internal/chunker"
	"github.com/sigil-dev/chunkstore/internal/cipher"
	"github.com/sigil-dev/chunkstore/internal/embedding"
	"github.com/sigil-dev/chunkstore/internal/store"
	"github.com/sigil-dev/chunkstore/internal/tokenizer"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// Status is the outcome of AddDocument.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusDuplicate Status = "duplicate"
)

// AddResult describes an AddDocument call.
type AddResult struct {
	DocumentID    string   `json:"id"`
	Status        Status   `json:"status"`
	ChunksCreated int      `json:"chunks_created"`
	TokensAdded   int      `json:"tokens_added"`
	Evicted       []string `json:"evicted,omitempty"`
}

// Options wires a Store. Counter, Chunker, Index, Catalog and MaxTokens are
// required. A nil Embedder stores documents without vectors; a nil Cipher
// stores plain text.
type Options struct {
	Counter  *tokenizer.Counter
	Chunker  *chunker.Chunker
	Cipher   *cipher.Cipher
	Embedder embedding.Gateway
	Index    store.VectorIndex
	Catalog  store.Catalog

	MaxTokens int

	// Concurrency bounds parallel embedding calls per document. Defaults to 4.
	Concurrency int
	// IndexAttempts bounds tries per index write. Defaults to 3.
	IndexAttempts int
	// IndexBackoff is the delay before the second attempt; it doubles after
	// each failure. Defaults to 100ms.
	IndexBackoff time.Duration

	// Now overrides the clock (for testing).
	Now func() time.Time
}

// Store is the capacity-managed document store. It is safe for concurrent use.
//
// writeMu serializes writers through the whole check-evict-upsert-commit
// sequence. mu guards docs and the counters and is held exclusively only for
// the in-memory commit or drop; embedding happens before either lock is taken.
type Store struct {
	counter  *tokenizer.Counter
	chunker  *chunker.Chunker
	cipher   *cipher.Cipher
	embedder embedding.Gateway
	index    store.VectorIndex
	catalog  store.Catalog

	maxTokens   int
	concurrency int
	attempts    int
	backoff     time.Duration
	now         func() time.Time

	writeMu sync.Mutex
	seq     int64 // guarded by writeMu

	mu            sync.RWMutex
	docs          map[string]store.Document
	currentTokens int
	chunkCount    int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	unindexedOnce sync.Once
}

// Open validates opts and reloads persisted documents from the catalog.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	s := &Store{
		counter:     opts.Counter,
		chunker:     opts.Chunker,
		cipher:      opts.Cipher,
		embedder:    opts.Embedder,
		index:       opts.Index,
		catalog:     opts.Catalog,
		maxTokens:   opts.MaxTokens,
		concurrency: opts.Concurrency,
		attempts:    opts.IndexAttempts,
		backoff:     opts.IndexBackoff,
		now:         opts.Now,
		docs:        map[string]store.Document{},
	}
	if s.cipher == nil {
		s.cipher = cipher.Disabled()
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.attempts <= 0 {
		s.attempts = 3
	}
	if s.backoff <= 0 {
		s.backoff = 100 * time.Millisecond
	}
	if s.now == nil {
		s.now = time.Now
	}

	docs, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, chunkerr.Wrapf(err, chunkerr.CodeStoreCatalogFailure, "loading catalog")
	}
	for _, d := range docs {
		s.docs[d.ID] = d
		s.currentTokens += d.TotalTokens
		s.chunkCount += len(d.ChunkIDs)
		s.seq = max(s.seq, d.Seq)
	}

	if s.currentTokens > s.maxTokens {
		slog.Warn("persisted documents exceed the token budget, oldest will be evicted on next add",
			"current_tokens", s.currentTokens, "max_tokens", s.maxTokens)
	}

	slog.Info("document store opened",
		"documents", len(s.docs),
		"current_tokens", s.currentTokens,
		"max_tokens", s.maxTokens,
		"chunk_size", s.chunker.ChunkSize(),
		"overlap", s.chunker.Overlap(),
		"encryption", s.cipher.Enabled(),
		"embedding", s.embedder != nil,
	)
	return s, nil
}

func validateOptions(opts Options) error {
	var errs []error
	if opts.Counter == nil {
		errs = append(errs, chunkerr.New(chunkerr.CodeConfigValidateInvalidValue, "store: token counter is required"))
	}
	if opts.Chunker == nil {
		errs = append(errs, chunkerr.New(chunkerr.CodeConfigValidateInvalidValue, "store: chunker is required"))
	}
	if opts.Index == nil {
		errs = append(errs, chunkerr.New(chunkerr.CodeConfigValidateInvalidValue, "store: vector index is required"))
	}
	if opts.Catalog == nil {
		errs = append(errs, chunkerr.New(chunkerr.CodeConfigValidateInvalidValue, "store: catalog is required"))
	}
	if opts.MaxTokens <= 0 {
		errs = append(errs, chunkerr.Errorf(chunkerr.CodeConfigValidateInvalidValue,
			"store: max tokens must be greater than 0, got %d", opts.MaxTokens))
	}
	if len(errs) > 0 {
		return chunkerr.Errorf(chunkerr.CodeConfigValidateInvalidValue, "invalid store options: %w", errors.Join(errs...))
	}
	return nil
}

// AddDocument chunks, embeds and stores content, evicting the oldest
// documents when the budget would be exceeded. Identical content under the
// same name is reported as a duplicate without any mutation.
func (s *Store) AddDocument(ctx context.Context, content, name string, metadata map[string]string) (AddResult, error) {
	if s.closed.Load() {
		return AddResult{}, errClosed()
	}
	if strings.TrimSpace(content) == "" {
		return AddResult{}, chunkerr.New(chunkerr.CodeStoreDocumentInvalid, "document content is empty")
	}

	id := DocumentID(content, name)
	if s.has(id) {
		return duplicate(id), nil
	}

	needed := s.counter.Count(content)
	if needed > s.maxTokens {
		return AddResult{}, chunkerr.New(chunkerr.CodeStoreCapacityExceeded, "document exceeds the token budget",
			chunkerr.FieldDocumentID(id),
			chunkerr.Field("needed_tokens", needed),
			chunkerr.Field("max_tokens", s.maxTokens),
		)
	}

	pieces := s.chunker.Split(content)
	if len(pieces) == 0 {
		return AddResult{}, chunkerr.New(chunkerr.CodeStoreDocumentInvalid, "document has no tokens", chunkerr.FieldDocumentID(id))
	}

	vectors, err := s.embedAll(ctx, id, pieces)
	if err != nil {
		return AddResult{}, err
	}

	created := s.now()
	doc := store.Document{
		ID:          id,
		Name:        name,
		CreatedAt:   created,
		TotalTokens: needed,
		Metadata:    maps.Clone(metadata),
		Preview:     store.Preview(content),
	}
	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		stored, err := s.cipher.Encrypt(p.Text)
		if err != nil {
			return AddResult{}, chunkerr.With(err, chunkerr.FieldDocumentID(id))
		}
		chunks[i] = store.Chunk{
			ID:         store.ChunkID(id, i),
			DocumentID: id,
			ChunkIndex: i,
			TokenCount: p.Tokens,
			StoredText: stored,
			Encrypted:  s.cipher.Enabled(),
			CreatedAt:  created,
		}
		doc.ChunkIDs = append(doc.ChunkIDs, chunks[i].ID)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return AddResult{}, errClosed()
	}
	// A concurrent writer may have stored the same submission while we embedded.
	if s.has(id) {
		return duplicate(id), nil
	}

	victims, err := s.planEviction(needed)
	if err != nil {
		return AddResult{}, err
	}
	evicted := documentIDs(victims)

	s.seq++
	doc.Seq = s.seq

	// The new vectors stay hidden from search until the document is live.
	if err := s.upsertChunks(ctx, doc, chunks, vectors); err != nil {
		return AddResult{}, err
	}

	if err := s.catalog.Put(ctx, doc, chunks, evicted...); err != nil {
		s.dropVectors(doc.ChunkIDs, "rollback")
		return AddResult{}, chunkerr.Wrap(err, chunkerr.CodeStoreCatalogFailure, "persisting document",
			chunkerr.FieldDocumentID(id))
	}

	s.mu.Lock()
	for _, v := range victims {
		delete(s.docs, v.ID)
		s.currentTokens -= v.TotalTokens
		s.chunkCount -= len(v.ChunkIDs)
	}
	s.docs[id] = doc
	s.currentTokens += needed
	s.chunkCount += len(chunks)
	current := s.currentTokens
	s.mu.Unlock()

	for _, v := range victims {
		slog.Info("document evicted", "document_id", v.ID, "tokens_freed", v.TotalTokens)
	}
	s.dropVectors(chunkIDs(victims), "eviction")

	slog.Info("document stored",
		"document_id", id,
		"chunks", len(chunks),
		"tokens", needed,
		"current_tokens", current,
		"evicted", len(evicted),
	)

	return AddResult{
		DocumentID:    id,
		Status:        StatusSuccess,
		ChunksCreated: len(chunks),
		TokensAdded:   needed,
		Evicted:       evicted,
	}, nil
}

func duplicate(id string) AddResult {
	return AddResult{DocumentID: id, Status: StatusDuplicate}
}

func errClosed() error {
	return chunkerr.New(chunkerr.CodeStoreClosed, "document store is shut down")
}

func (s *Store) has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok
}

// embedAll embeds every piece in parallel. Results are placed by piece index.
// Without an embedder it returns nil and the document is stored unindexed.
func (s *Store) embedAll(ctx context.Context, id string, pieces []chunker.Piece) ([][]float32, error) {
	if s.embedder == nil {
		s.unindexedOnce.Do(func() {
			slog.Warn("no embedding gateway configured, documents are stored without vectors and are not searchable")
		})
		return nil, nil
	}

	vectors := make([][]float32, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, p := range pieces {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, p.Text)
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if chunkerr.CodeOf(err) == "" {
			err = chunkerr.Wrapf(err, chunkerr.CodeEmbeddingUpstreamFailure, "embedding chunks")
		}
		return nil, chunkerr.With(err, chunkerr.FieldDocumentID(id))
	}
	return vectors, nil
}

// upsertChunks writes every vector, removing the ones already written when
// any write fails for good.
func (s *Store) upsertChunks(ctx context.Context, doc store.Document, chunks []store.Chunk, vectors [][]float32) error {
	if vectors == nil {
		return nil
	}

	for i, ch := range chunks {
		payload := store.Payload{
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			ChunkIndex:   ch.ChunkIndex,
			Content:      ch.StoredText,
			Encrypted:    ch.Encrypted,
			Metadata:     doc.Metadata,
		}
		err := s.retry(ctx, func() error {
			return s.index.Upsert(ctx, ch.ID, vectors[i], payload)
		})
		if err != nil {
			s.dropVectors(doc.ChunkIDs[:i+1], "rollback")
			return chunkerr.Wrap(err, chunkerr.CodeIndexFailure, "upserting chunk",
				chunkerr.FieldDocumentID(doc.ID), chunkerr.FieldChunkID(ch.ID))
		}
	}
	return nil
}

// retry runs op up to s.attempts times with exponential backoff.
func (s *Store) retry(ctx context.Context, op func() error) error {
	delay := s.backoff
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == s.attempts {
			break
		}
		slog.Debug("index operation failed, retrying", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// Document returns a live document by id.
func (s *Store) Document(id string) (store.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	return d, ok
}

// Documents returns live documents, oldest first.
func (s *Store) Documents() []store.Document {
	s.mu.RLock()
	docs := make([]store.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.RUnlock()

	sortOldestFirst(docs)
	return docs
}

func sortOldestFirst(docs []store.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].Seq < docs[j].Seq
	})
}

// Chunks returns the stored chunks of a live document with their text
// decrypted.
func (s *Store) Chunks(ctx context.Context, id string) ([]store.Chunk, error) {
	if s.closed.Load() {
		return nil, errClosed()
	}
	if _, ok := s.Document(id); !ok {
		return nil, chunkerr.New(chunkerr.CodeStoreDocumentInvalid, "document not found", chunkerr.FieldDocumentID(id))
	}

	chunks, err := s.catalog.Chunks(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, chunkerr.New(chunkerr.CodeStoreDocumentInvalid, "document not found", chunkerr.FieldDocumentID(id))
		}
		return nil, chunkerr.Wrap(err, chunkerr.CodeStoreCatalogFailure, "loading chunks", chunkerr.FieldDocumentID(id))
	}

	for i := range chunks {
		if !chunks[i].Encrypted {
			continue
		}
		text, err := s.cipher.Reveal(chunks[i].StoredText, true)
		if err != nil {
			return nil, chunkerr.With(err, chunkerr.FieldChunkID(chunks[i].ID))
		}
		chunks[i].StoredText = text
		chunks[i].Encrypted = false
	}
	return chunks, nil
}

// ClearAll removes every document, chunk and vector and resets the counters.
func (s *Store) ClearAll(ctx context.Context) error {
	if s.closed.Load() {
		return errClosed()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	var ids []string
	for _, d := range s.docs {
		ids = append(ids, d.ChunkIDs...)
	}
	count := len(s.docs)
	s.mu.RUnlock()

	// The catalog goes first: once it is empty, leftover vectors belong to
	// no live document and are hidden from search.
	if err := s.catalog.Clear(ctx); err != nil {
		return chunkerr.Wrap(err, chunkerr.CodeStoreCatalogFailure, "clearing catalog")
	}

	s.mu.Lock()
	clear(s.docs)
	s.currentTokens = 0
	s.chunkCount = 0
	s.mu.Unlock()

	s.dropVectors(ids, "clear")

	slog.Info("document store cleared", "documents", count, "chunks", len(ids))
	return nil
}

// Closed reports whether Shutdown has been called.
func (s *Store) Closed() bool {
	return s.closed.Load()
}

// Shutdown releases the embedding gateway, vector index and catalog. It is
// idempotent; later calls return the first result.
func (s *Store) Shutdown() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		// Wait for an in-flight writer to finish.
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		var errs []error
		if s.embedder != nil {
			if err := s.embedder.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.index.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = chunkerr.Join(errs...)

		slog.Info("document store shut down")
	})
	return s.closeErr
}
