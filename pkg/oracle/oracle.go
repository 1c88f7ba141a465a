// Package oracle is the boundary to the external reasoning service. The
// oracle is treated as an opaque, possibly non-deterministic function: given
// a task, structured context, and a target output schema it returns a
// structured result or fails. It may be invoked repeatedly with identical
// input to obtain independent samples for consensus.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Request is one oracle invocation.
type Request struct {
	// Task is the natural-language task description.
	Task string

	// Context is structured background serialized as key→value data:
	// requirement fields, candidate data, prior-stage outputs.
	Context map[string]string

	// SchemaName labels the expected result shape.
	SchemaName string

	// Schema enumerates the expected result fields as a JSON schema.
	// Ask fills it from the target Go type when left nil.
	Schema map[string]any
}

// Provider issues oracle calls. Implementations must be safe for concurrent
// use; independent samples for one request are in-flight simultaneously.
type Provider interface {
	// Invoke performs one call and returns the raw structured result.
	Invoke(ctx context.Context, req Request) ([]byte, error)

	// Name identifies the provider for logging.
	Name() string

	Close() error
}

// Ask invokes the oracle once and decodes the result into T. A result that
// does not match the expected schema is a schema mismatch, reported through
// the same error type as any other oracle failure.
func Ask[T any](ctx context.Context, p Provider, req Request) (T, error) {
	var result T

	if req.Schema == nil {
		schema, err := SchemaFor[T]()
		if err != nil {
			return result, &Error{Provider: p.Name(), Operation: "schema", Err: err}
		}
		req.Schema = schema
	}

	raw, err := p.Invoke(ctx, req)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, &Error{
			Provider:  p.Name(),
			Operation: "decode",
			Message:   "result does not match expected schema",
			Err:       fmt.Errorf("%w: %v", ErrSchemaMismatch, err),
		}
	}

	return result, nil
}

// Samples invokes the oracle n times with identical input to obtain
// independent samples, processed in waves of at most concurrency calls. A
// wave barrier guarantees all results of wave n are collected before wave
// n+1 starts.
//
// Failed samples are dropped, producing a degraded but non-fatal sample set;
// only when every sample fails is an error returned.
func Samples[T any](ctx context.Context, p Provider, req Request, n, concurrency int) ([]T, error) {
	if n < 1 {
		n = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}

	if req.Schema == nil {
		schema, err := SchemaFor[T]()
		if err != nil {
			return nil, &Error{Provider: p.Name(), Operation: "schema", Err: err}
		}
		req.Schema = schema
	}

	var (
		mu      sync.Mutex
		results []T
		lastErr error
	)

	for wave := 0; wave < n; wave += concurrency {
		size := concurrency
		if wave+size > n {
			size = n - wave
		}

		var g errgroup.Group
		for i := 0; i < size; i++ {
			g.Go(func() error {
				sample, err := Ask[T](ctx, p, req)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// A failed sample is dropped, never fatal for
					// the wave.
					lastErr = err
					return nil
				}
				results = append(results, sample)
				return nil
			})
		}
		_ = g.Wait()
	}

	if len(results) == 0 {
		return nil, &Error{
			Provider:  p.Name(),
			Operation: "sample",
			Message:   fmt.Sprintf("all %d samples failed", n),
			Err:       fmt.Errorf("%w: %v", ErrAllSamplesFailed, lastErr),
		}
	}

	return results, nil
}

// SerializeContext renders the request context deterministically (sorted
// keys) for inclusion in the provider prompt, truncated to the given token
// budget when a counter is supplied.
func SerializeContext(req Request, counter *TokenCounter, budget int) string {
	if len(req.Context) == 0 {
		return ""
	}

	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(req.Context[k])
		b.WriteString("\n")
	}

	serialized := b.String()
	if counter != nil && budget > 0 {
		serialized = counter.Truncate(serialized, budget)
	}
	return serialized
}
