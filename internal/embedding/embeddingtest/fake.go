// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embeddingtest provides a deterministic in-process embedding gateway.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// Fake embeds text as a normalized bag of hashed words. Fixed vectors can be
// pinned per text, and failures injected with FailOn or Err.
type Fake struct {
	Dims int

	mu     sync.Mutex
	pinned map[string][]float32
	failOn map[string]error
	err    error
	block  chan struct{}
	calls  atomic.Int64
	closed atomic.Bool
}

// New returns a Fake with the given dimensionality.
func New(dims int) *Fake {
	return &Fake{
		Dims:   dims,
		pinned: map[string][]float32{},
		failOn: map[string]error{},
	}
}

func (f *Fake) Name() string    { return "fake" }
func (f *Fake) Dimensions() int { return f.Dims }

func (f *Fake) Close() error {
	f.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool { return f.closed.Load() }

// Calls returns the number of Embed calls.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

// Pin fixes the vector returned for text.
func (f *Fake) Pin(text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned[text] = vec
}

// FailOn makes Embed return err for any text containing substr.
func (f *Fake) FailOn(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[substr] = err
}

// SetErr makes every Embed call fail with err until cleared with nil.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Block makes Embed wait until the returned func is called or ctx ends.
func (f *Fake) Block() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.block = nil
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)

	f.mu.Lock()
	block := f.block
	err := f.err
	var injected error
	for substr, e := range f.failOn {
		if strings.Contains(text, substr) {
			injected = e
			break
		}
	}
	pinned, ok := f.pinned[text]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if injected != nil {
		return nil, injected
	}
	if ok {
		return append([]float32(nil), pinned...), nil
	}
	return Vector(text, f.Dims), nil
}

// Vector is the bag-of-words embedding used for unpinned text.
func Vector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
