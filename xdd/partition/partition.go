// Package partition implements the aligned partitioner (spec §4.1): it
// divides a byte range into up to N contiguous, non-overlapping shards
// that are all but the last a multiple of granule bytes.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package partition

import "github.com/bws-xdd/xddmcp/xdd/debug"

// Shard is one (offset, length) partition of [0, size).
type Shard struct {
	Offset int64
	Length int64
}

// Aligned computes the aligned partition of size bytes into at most
// requestedShards shards of granule-aligned length, per spec §4.1:
//
//   - effectiveShards = min(requestedShards, size/granule); 0 if size < granule
//   - interior shards are granule-aligned; the last non-empty shard
//     absorbs the unaligned remainder
//   - shards beyond effectiveShards are (0, 0), handled by callers as
//     the empty-shard (no mover) path
func Aligned(requestedShards int, granule, size int64) []Shard {
	out := make([]Shard, requestedShards)
	if requestedShards <= 0 || granule <= 0 {
		return out
	}

	granules := size / granule
	effectiveShards := requestedShards
	if int64(requestedShards) > granules {
		effectiveShards = int(granules)
	}
	if effectiveShards <= 0 {
		return out
	}

	begin := func(i int) int64 {
		return (int64(i) * granules / int64(effectiveShards)) * granule
	}

	for i := 0; i < effectiveShards; i++ {
		off := begin(i)
		var length int64
		if i == effectiveShards-1 {
			length = size - off
		} else {
			length = begin(i+1) - off
		}
		debug.Assertf(off+length <= size, "shard %d exceeds size: offset=%d length=%d size=%d", i, off, length, size)
		out[i] = Shard{Offset: off, Length: length}
	}
	return out
}

// Part returns the (offset, length) pair for a single shard index by
// calling Aligned and indexing the result (the common case: a Flow only
// ever needs its own shard). An out-of-range idx yields the zero Shard.
func Part(requestedShards int, granule, size int64, idx int) Shard {
	if idx < 0 || idx >= requestedShards {
		return Shard{}
	}
	shards := Aligned(requestedShards, granule, size)
	return shards[idx]
}
