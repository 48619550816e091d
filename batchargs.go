// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"context"
	"flag"
	"fmt"
)

// batchArgs splits a list of tracks into batches, so that each
// batch's signal matrices can be built in a separate container.
type batchArgs struct {
	batch   int
	batches int
}

func (b *batchArgs) Flags(flags *flag.FlagSet) {
	flags.IntVar(&b.batches, "batches", 1, "number of batches")
	flags.IntVar(&b.batch, "batch", -1, "only do `N`th batch (-1 = all)")
}

func (b *batchArgs) Validate() error {
	if b.batches < 1 {
		return fmt.Errorf("%w: -batches %d < 1", errConfig, b.batches)
	}
	if b.batch < -1 || b.batch >= b.batches {
		return fmt.Errorf("%w: -batch %d out of range with -batches %d", errConfig, b.batch, b.batches)
	}
	return nil
}

func (b *batchArgs) Args(batch int) []string {
	return []string{
		fmt.Sprintf("-batches=%d", b.batches),
		fmt.Sprintf("-batch=%d", batch),
	}
}

// RunBatches calls runFunc once per batch, all at once, and returns
// the outputs in batch order along with the first error, if any. The
// first failure cancels the context passed to the other calls.
func (b *batchArgs) RunBatches(ctx context.Context, runFunc func(context.Context, int) (string, error)) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	outputs := make([]string, b.batches)
	throttle := throttle{Max: b.batches}
	for batch := 0; batch < b.batches; batch++ {
		if b.batch >= 0 && b.batch != batch {
			continue
		}
		batch := batch
		throttle.Go(func() error {
			out, err := runFunc(ctx, batch)
			outputs[batch] = out
			if err != nil {
				cancel()
				return fmt.Errorf("batch %d: %w", batch, err)
			}
			return nil
		})
	}
	err := throttle.Wait()
	if b.batch >= 0 {
		outputs = outputs[b.batch : b.batch+1]
	}
	return outputs, err
}

// Slice returns the tracks belonging to this batch, or all of them if
// no batch was selected.
func (b *batchArgs) Slice(tracks []string) []string {
	if b.batches < 2 || b.batch < 0 {
		return tracks
	}
	batchsize := (len(tracks) + b.batches - 1) / b.batches
	if batchsize*b.batch >= len(tracks) {
		return nil
	}
	out := tracks[batchsize*b.batch:]
	if len(out) > batchsize {
		out = out[:batchsize]
	}
	return out
}
