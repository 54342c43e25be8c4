// batch.go: Order-preserving, fail-fast batch encryption and decryption.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchOptions controls execution of BatchEncrypt and BatchDecrypt. The
// zero value processes items sequentially with no progress reporting.
type BatchOptions struct {
	// Parallel fans items out across goroutines. Items share no mutable
	// state beyond read-only key lookups, so no extra locking applies.
	Parallel bool

	// BatchSize bounds the number of in-flight items when Parallel is set.
	// Zero or negative means unbounded (all items at once).
	BatchSize int

	// OnProgress, when non-nil, is invoked after each completed item with
	// the number of items done so far and the total. Invocations are
	// serialized even in parallel mode.
	OnProgress func(done, total int)
}

// BatchEncrypt encrypts a slice of values and returns their envelopes in
// input order regardless of execution mode.
//
// The call is fail-fast: the first item failure aborts the whole batch and
// is propagated as a *BatchError carrying the item index; partial results
// are never returned. Cancellation is honored between items,
// never mid-item, so a started item always completes cleanly.
func (s *Service) BatchEncrypt(ctx context.Context, values []any, opts BatchOptions) ([]string, error) {
	return runBatch(ctx, values, opts, s.Encrypt)
}

// BatchDecrypt decrypts a slice of envelope strings and returns the
// plaintext values in input order. Same ordering, fail-fast and
// cancellation semantics as BatchEncrypt.
func (s *Service) BatchDecrypt(ctx context.Context, envelopes []string, opts BatchOptions) ([]any, error) {
	return runBatch(ctx, envelopes, opts, s.Decrypt)
}

// runBatch executes op over every item, preserving input order in the
// output slice. Each worker writes only its own index, so the slice needs
// no locking; the progress counter is the one shared mutable cell.
func runBatch[In, Out any](ctx context.Context, items []In, opts BatchOptions, op func(In) (Out, error)) ([]Out, error) {
	total := len(items)
	results := make([]Out, total)

	var progressMu sync.Mutex
	done := 0
	reportProgress := func() {
		if opts.OnProgress == nil {
			return
		}
		// The mutex is held across the callback itself, not just the
		// counter: invocations are serialized even in parallel mode.
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		opts.OnProgress(done, total)
	}

	if !opts.Parallel {
		for i, item := range items {
			// Cancellation is checked between items only; an item that has
			// started always finishes, so no torn envelope is ever produced.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := op(item)
			if err != nil {
				return nil, &BatchError{Index: i, Err: err}
			}
			results[i] = out
			reportProgress()
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.BatchSize > 0 {
		g.SetLimit(opts.BatchSize)
	}
	for i, item := range items {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			out, err := op(item)
			if err != nil {
				return &BatchError{Index: i, Err: err}
			}
			results[i] = out
			reportProgress()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
