package retention_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/history"
	"github.com/coreweave-labs/filesyncd/retention"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func touch(path string, age time.Duration) {
	Expect(os.WriteFile(path, []byte("x"), 0o644)).To(Succeed())
	t := time.Now().Add(-age)
	Expect(os.Chtimes(path, t, t)).To(Succeed())
}

var _ = Describe("Apply", func() {
	var dst string

	BeforeEach(func() {
		dst = GinkgoT().TempDir()
	})

	Context("days retention", func() {
		It("keeps entries newer than the threshold and removes older ones", func() {
			touch(filepath.Join(dst, "a.bak"), 3*24*time.Hour)
			touch(filepath.Join(dst, "b.bak"), 61*24*time.Hour)
			cfg := &config.SyncConfiguration{RetentionMode: config.RetentionDays, RetentionValue: 60, Patterns: []string{"*.bak"}}
			hist := history.Map{}

			_, changed, errs := retention.Apply(cfg, dst, hist)

			Expect(errs.Cnt()).To(Equal(0))
			Expect(filepath.Join(dst, "a.bak")).To(BeAnExistingFile())
			Expect(filepath.Join(dst, "b.bak")).NotTo(BeAnExistingFile())
			_ = changed
		})

		It("disables the policy for retention_value <= 0", func() {
			touch(filepath.Join(dst, "old.bak"), 365*24*time.Hour)
			cfg := &config.SyncConfiguration{RetentionMode: config.RetentionDays, RetentionValue: 0, Patterns: []string{"*.bak"}}

			retention.Apply(cfg, dst, history.Map{})

			Expect(filepath.Join(dst, "old.bak")).To(BeAnExistingFile())
		})
	})

	Context("count retention", func() {
		It("keeps only the N newest by effective timestamp", func() {
			names := []string{"x1", "x2", "x3", "x4"}
			hist := history.Map{}
			for i, n := range names {
				p := filepath.Join(dst, n)
				Expect(os.WriteFile(p, []byte("x"), 0o644)).To(Succeed())
				ts := time.Now().Add(time.Duration(i) * time.Hour).UTC().Format(history.TimeLayout)
				hist[n] = ts
			}
			cfg := &config.SyncConfiguration{RetentionMode: config.RetentionCount, RetentionValue: 2, Patterns: []string{"*"}}

			_, changed, errs := retention.Apply(cfg, dst, hist)

			Expect(errs.Cnt()).To(Equal(0))
			Expect(changed).To(BeTrue())
			Expect(filepath.Join(dst, "x1")).NotTo(BeAnExistingFile())
			Expect(filepath.Join(dst, "x2")).NotTo(BeAnExistingFile())
			Expect(filepath.Join(dst, "x3")).To(BeAnExistingFile())
			Expect(filepath.Join(dst, "x4")).To(BeAnExistingFile())
			Expect(hist).To(HaveLen(2))
			Expect(hist).To(HaveKey("x3"))
			Expect(hist).To(HaveKey("x4"))
		})

		It("is a no-op when the entry count is already within bounds", func() {
			touch(filepath.Join(dst, "only.bak"), time.Hour)
			cfg := &config.SyncConfiguration{RetentionMode: config.RetentionCount, RetentionValue: 5, Patterns: []string{"*.bak"}}

			retention.Apply(cfg, dst, history.Map{})

			Expect(filepath.Join(dst, "only.bak")).To(BeAnExistingFile())
		})
	})

	Context("sync mode", func() {
		It("never deletes anything at the retention stage", func() {
			touch(filepath.Join(dst, "ancient.bak"), 999*24*time.Hour)
			cfg := &config.SyncConfiguration{RetentionMode: config.RetentionSync, RetentionValue: 0, Patterns: []string{"*.bak"}}

			retention.Apply(cfg, dst, history.Map{})

			Expect(filepath.Join(dst, "ancient.bak")).To(BeAnExistingFile())
		})
	})

	It("falls back to mtime when the history timestamp is unparseable", func() {
		touch(filepath.Join(dst, "a.bak"), 70*24*time.Hour)
		hist := history.Map{"a.bak": "not-a-timestamp"}
		cfg := &config.SyncConfiguration{RetentionMode: config.RetentionDays, RetentionValue: 60, Patterns: []string{"*.bak"}}

		retention.Apply(cfg, dst, hist)

		Expect(filepath.Join(dst, "a.bak")).NotTo(BeAnExistingFile())
	})

	It("sweeps nested history keys when a matched directory is removed", func() {
		Expect(os.MkdirAll(filepath.Join(dst, "sub"), 0o755)).To(Succeed())
		touch(filepath.Join(dst, "sub", "a.bak"), 90*24*time.Hour)
		hist := history.Map{"sub/a.bak": time.Now().Add(-90 * 24 * time.Hour).UTC().Format(history.TimeLayout)}
		cfg := &config.SyncConfiguration{RetentionMode: config.RetentionDays, RetentionValue: 60, Patterns: []string{"*"}}

		_, changed, errs := retention.Apply(cfg, dst, hist)

		Expect(errs.Cnt()).To(Equal(0))
		Expect(changed).To(BeTrue())
		Expect(filepath.Join(dst, "sub")).NotTo(BeAnExistingFile())
		Expect(hist).NotTo(HaveKey("sub/a.bak"))
	})

	It("never scans inside the .history directory", func() {
		Expect(os.MkdirAll(filepath.Join(dst, ".history"), 0o755)).To(Succeed())
		touch(filepath.Join(dst, ".history", "sync_history.json"), 999*24*time.Hour)
		cfg := &config.SyncConfiguration{RetentionMode: config.RetentionDays, RetentionValue: 1, Patterns: []string{"*"}}

		retention.Apply(cfg, dst, history.Map{})

		Expect(filepath.Join(dst, ".history", "sync_history.json")).To(BeAnExistingFile())
	})
})
