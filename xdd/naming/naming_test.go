package naming_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bws-xdd/xddmcp/xdd/naming"
)

func TestNaming(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}

var _ = Describe("Posix naming", func() {
	var root string

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "xddmcp-naming-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(root)
	})

	It("maps a single regular file 1:1 when dest is not a directory", func() {
		src := filepath.Join(root, "a.bin")
		Expect(os.WriteFile(src, []byte("x"), 0644)).To(Succeed())

		dst := filepath.Join(root, "b.bin")
		res, err := naming.Posix().BuildDirsFilesLinks(src, dst, false, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(naming.StatusOK))
		Expect(res.Files).To(Equal([]naming.FilePair{{Src: src, Dst: dst}}))
		Expect(res.Dirs).To(BeEmpty())
		Expect(res.Links).To(BeEmpty())
	})

	It("returns NotFound for a missing source", func() {
		res, _ := naming.Posix().BuildDirsFilesLinks(filepath.Join(root, "nope"), filepath.Join(root, "d"), false, false)
		Expect(res.Status).To(Equal(naming.StatusNotFound))
	})

	It("places children directly under dest when source has a trailing slash and dest exists", func() {
		srcDir := filepath.Join(root, "src")
		Expect(os.MkdirAll(filepath.Join(srcDir, "d"), 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(srcDir, "a"), nil, 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(srcDir, "b"), nil, 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(srcDir, "d", "c"), nil, 0644)).To(Succeed())

		dst := filepath.Join(root, "dst")
		Expect(os.MkdirAll(dst, 0755)).To(Succeed())

		res, err := naming.Posix().BuildDirsFilesLinks(srcDir+string(filepath.Separator), dst, true, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(naming.StatusOK))

		var fileDsts []string
		for _, f := range res.Files {
			fileDsts = append(fileDsts, f.Dst)
		}
		Expect(fileDsts).To(ConsistOf(
			filepath.Join(dst, "a"),
			filepath.Join(dst, "b"),
			filepath.Join(dst, "d", "c"),
		))
	})

	It("nests under dest/basename(src) without a trailing slash", func() {
		srcDir := filepath.Join(root, "src")
		Expect(os.MkdirAll(filepath.Join(srcDir, "d"), 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(srcDir, "a"), nil, 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(srcDir, "b"), nil, 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(srcDir, "d", "c"), nil, 0644)).To(Succeed())

		dst := filepath.Join(root, "dst")
		Expect(os.MkdirAll(dst, 0755)).To(Succeed())

		res, err := naming.Posix().BuildDirsFilesLinks(srcDir, dst, true, true)
		Expect(err).NotTo(HaveOccurred())

		Expect(res.Dirs).To(ContainElement(naming.DirPair{Src: srcDir, Dst: filepath.Join(dst, "src")}))
		Expect(res.Dirs).To(ContainElement(naming.DirPair{Src: filepath.Join(srcDir, "d"), Dst: filepath.Join(dst, "src", "d")}))

		var fileDsts []string
		for _, f := range res.Files {
			fileDsts = append(fileDsts, f.Dst)
		}
		Expect(fileDsts).To(ConsistOf(
			filepath.Join(dst, "src", "a"),
			filepath.Join(dst, "src", "b"),
			filepath.Join(dst, "src", "d", "c"),
		))
	})

	It("emits a single link entry for a source symlink, preserving the raw target", func() {
		target := filepath.Join(root, "target")
		Expect(os.WriteFile(target, nil, 0644)).To(Succeed())
		link := filepath.Join(root, "link")
		Expect(os.Symlink("../target", link)).To(Succeed())

		dst := filepath.Join(root, "dst")
		Expect(os.MkdirAll(dst, 0755)).To(Succeed())

		res, err := naming.Posix().BuildDirsFilesLinks(link, dst, true, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Links).To(Equal([]naming.LinkEntry{
			{Src: link, Dst: filepath.Join(dst, "link"), Target: "../target"},
		}))
	})
})
