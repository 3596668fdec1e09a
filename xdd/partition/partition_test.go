package partition_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bws-xdd/xddmcp/xdd/partition"
)

var _ = Describe("Aligned", func() {
	It("covers the whole range contiguously with no overlap", func() {
		shards := partition.Aligned(4, 8192, 1048576)
		var off int64
		for _, s := range shards {
			Expect(s.Offset).To(Equal(off))
			off += s.Length
		}
		Expect(off).To(Equal(int64(1048576)))
	})

	It("aligns interior shards to the granule", func() {
		shards := partition.Aligned(3, 8192, 1048576)
		for i := 0; i < len(shards)-1; i++ {
			Expect(shards[i].Length % 8192).To(Equal(int64(0)))
		}
	})

	It("collapses to a single empty shard when granule exceeds size", func() {
		shards := partition.Aligned(4, 8192, 100)
		Expect(shards[0]).To(Equal(partition.Shard{Offset: 0, Length: 0}))
		for _, s := range shards {
			Expect(s.Length).To(Equal(int64(0)))
		}
	})

	It("caps effective shards at size/granule and zeroes the rest", func() {
		// size/granule == 2, requesting 5 shards: only 2 non-empty
		shards := partition.Aligned(5, 100, 250)
		Expect(shards[0].Length).NotTo(BeZero())
		Expect(shards[1].Length).NotTo(BeZero())
		Expect(shards[2]).To(Equal(partition.Shard{Offset: 0, Length: 0}))
		Expect(shards[3]).To(Equal(partition.Shard{Offset: 0, Length: 0}))
		Expect(shards[4]).To(Equal(partition.Shard{Offset: 0, Length: 0}))

		var off int64
		for _, s := range shards[:2] {
			Expect(s.Offset).To(Equal(off))
			off += s.Length
		}
		Expect(off).To(Equal(int64(250)))
	})

	It("absorbs the unaligned remainder into the last shard", func() {
		shards := partition.Aligned(3, 100, 330)
		Expect(shards[0].Length).To(Equal(int64(100)))
		Expect(shards[1].Length).To(Equal(int64(100)))
		Expect(shards[2].Length).To(Equal(int64(130)))
		Expect(shards[2].Offset + shards[2].Length).To(Equal(int64(330)))
	})

	It("handles the single-shard case", func() {
		shards := partition.Aligned(1, 8192, 1048576)
		Expect(shards[0]).To(Equal(partition.Shard{Offset: 0, Length: 1048576}))
	})

	It("returns all-zero shards for a zero-size transfer", func() {
		shards := partition.Aligned(4, 8192, 0)
		for _, s := range shards {
			Expect(s).To(Equal(partition.Shard{Offset: 0, Length: 0}))
		}
	})
})
