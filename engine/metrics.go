package engine

import (
	"strconv"
	"time"
)

func (e *Engine) configIDLabel() string { return strconv.FormatInt(e.cfg.ID, 10) }

func (e *Engine) incFilesCopied(bytesCopied int64) {
	if e.stats == nil {
		return
	}
	id := e.configIDLabel()
	e.stats.FilesCopied.WithLabelValues(id).Inc()
	e.stats.BytesCopied.WithLabelValues(id).Add(float64(bytesCopied))
}

func (e *Engine) incCopyError() {
	if e.stats == nil {
		return
	}
	e.stats.CopyErrors.WithLabelValues(e.configIDLabel()).Inc()
}

func (e *Engine) incRetentionDeletions(n int) {
	if e.stats == nil || n <= 0 {
		return
	}
	e.stats.RetentionDeletions.WithLabelValues(e.configIDLabel()).Add(float64(n))
}

func (e *Engine) observeCoordinatorWait(d time.Duration) {
	if e.stats == nil {
		return
	}
	e.stats.CoordinatorWaitMS.WithLabelValues(e.configIDLabel()).Observe(float64(d.Milliseconds()))
}
