// Package debug provides cheap, no-op-by-default invariant assertions used
// at internal boundaries (shard accounting, restart-cookie bookkeeping)
// without paying for them in production builds.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

// Build with `-tags xdd_debug` to turn these on.

func Assert(cond bool, args ...any) {
	assert(cond, args...)
}

func Assertf(cond bool, format string, args ...any) {
	assertf(cond, format, args...)
}

func AssertNoErr(err error) {
	assertNoErr(err)
}

func AssertMsg(cond bool, msg string) {
	assert(cond, msg)
}
