package match_test

import (
	"github.com/coreweave-labs/filesyncd/match"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Match", func() {
	It("is case-insensitive on both the name and the pattern", func() {
		Expect(match.Match("A.BAK", []string{"*.bak"})).To(BeTrue())
		Expect(match.Match("a.bak", []string{"*.BAK"})).To(BeTrue())
	})

	It("normalizes an empty pattern list to match everything", func() {
		Expect(match.Match("anything.ext", nil)).To(BeTrue())
	})

	It("rejects names that match none of the patterns", func() {
		Expect(match.Match("readme.txt", []string{"*.bak", "*.log"})).To(BeFalse())
	})

	It("supports single-character and set wildcards", func() {
		Expect(match.Match("a1.bak", []string{"a?.bak"})).To(BeTrue())
		Expect(match.Match("a2.bak", []string{"a[12].bak"})).To(BeTrue())
		Expect(match.Match("a3.bak", []string{"a[12].bak"})).To(BeFalse())
	})

	It("matches a bare wildcard against any single name", func() {
		Expect(match.Match("whatever.pbd", []string{"*"})).To(BeTrue())
	})
})
