package cos_test

import (
	"os"
	"path/filepath"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RenameFile", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	It("publishes the temp file atomically under the final name", func() {
		src := filepath.Join(root, "x.part")
		dst := filepath.Join(root, "x")
		Expect(os.WriteFile(src, []byte("payload"), 0o644)).To(Succeed())

		Expect(cos.RenameFile(src, dst)).To(Succeed())

		Expect(src).NotTo(BeAnExistingFile())
		b, err := os.ReadFile(dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal([]byte("payload")))
	})
})

var _ = Describe("ToPosixRel", func() {
	It("renders a relative path with forward slashes", func() {
		rel, ok := cos.ToPosixRel("/data/src", "/data/src/sub/file.bak")
		Expect(ok).To(BeTrue())
		Expect(rel).To(Equal("sub/file.bak"))
	})

	It("rejects a path outside the root", func() {
		_, ok := cos.ToPosixRel("/data/src", "/data/other/file.bak")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Plural", func() {
	It("is empty for exactly one", func() {
		Expect(cos.Plural(1)).To(Equal(""))
	})
	It("is 's' otherwise", func() {
		Expect(cos.Plural(0)).To(Equal("s"))
		Expect(cos.Plural(2)).To(Equal("s"))
	})
})
