package flowbuilder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bws-xdd/xddmcp/xdd/flowbuilder"
)

var _ = Describe("FlowBuilder", func() {
	var (
		dir string
		fb  *flowbuilder.FlowBuilder
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "xddmcp-flowbuilder-")
		Expect(err).NotTo(HaveOccurred())
		fb = flowbuilder.New()
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("reports path existence and directory-ness", func() {
		f := filepath.Join(dir, "a")
		Expect(os.WriteFile(f, []byte("x"), 0644)).To(Succeed())
		Expect(fb.PathExists(f)).To(BeTrue())
		Expect(fb.PathIsDir(f)).To(BeFalse())
		Expect(fb.PathIsDir(dir)).To(BeTrue())
		Expect(fb.PathExists(filepath.Join(dir, "nope"))).To(BeFalse())
	})

	It("creates directories idempotently", func() {
		d := filepath.Join(dir, "a", "b")
		Expect(fb.CreateDirectory(d)).To(Succeed())
		Expect(fb.CreateDirectory(d)).To(Succeed())
		info, err := os.Stat(d)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("creates symlinks idempotently, replacing a stale target", func() {
		link := filepath.Join(dir, "link")
		Expect(fb.CreateSymlink(link, "first")).To(Succeed())
		Expect(fb.CreateSymlink(link, "first")).To(Succeed())
		value, err := os.Readlink(link)
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("first"))

		Expect(fb.CreateSymlink(link, "second")).To(Succeed())
		value, err = os.Readlink(link)
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("second"))
	})

	It("tracks progress-marker completion per destination-relative path", func() {
		Expect(fb.TransferIsComplete(dir, "a/b.bin")).To(BeFalse())
		Expect(fb.MarkTransferCompleted(dir, "a/b.bin")).To(Succeed())
		Expect(fb.TransferIsComplete(dir, "a/b.bin")).To(BeTrue())
		Expect(fb.TransferIsComplete(dir, "a/c.bin")).To(BeFalse())

		Expect(fb.RemoveTransferProgressFile(dir)).To(Succeed())
		Expect(fb.TransferIsComplete(dir, "a/b.bin")).To(BeFalse())
	})

	It("removing an absent progress marker is not an error", func() {
		Expect(fb.RemoveTransferProgressFile(dir)).To(Succeed())
	})

	It("creates an empty file", func() {
		f := filepath.Join(dir, "empty.bin")
		Expect(fb.CreateEmptyFile(f)).To(Succeed())
		info, err := os.Stat(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Size()).To(Equal(int64(0)))
	})

	It("reports file size", func() {
		f := filepath.Join(dir, "sized.bin")
		Expect(os.WriteFile(f, make([]byte, 128), 0644)).To(Succeed())
		size, err := fb.GetFileSize(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(size).To(Equal(int64(128)))
	})

	It("delegates BuildWalk to the naming strategy", func() {
		src := filepath.Join(dir, "a.bin")
		Expect(os.WriteFile(src, nil, 0644)).To(Succeed())
		dst := filepath.Join(dir, "b.bin")
		res, err := fb.BuildWalk(src, dst, false, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Files).To(HaveLen(1))
		Expect(res.Files[0].Dst).To(Equal(dst))
	})
})
