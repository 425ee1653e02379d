package report

import (
	"sync"
	"time"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
)

// IndexWriter provides thread-safe updates to the report index. Items change
// at most twice (started, finished), so every update is flushed immediately.
type IndexWriter struct {
	mu        sync.Mutex
	outputDir string
	path      string
	index     *Index
	html      bool
}

// NewIndexWriter creates a new IndexWriter. When html is true report.html is
// regenerated on every flush.
func NewIndexWriter(outputDir string, index *Index, html bool) *IndexWriter {
	return &IndexWriter{
		outputDir: outputDir,
		path:      indexPath(outputDir),
		index:     index,
		html:      html,
	}
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = StatusRunning
	w.index.StartTime = now

	w.flushLocked()
}

// ItemStarted marks an item as running.
func (w *IndexWriter) ItemStarted(idx int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if idx < 0 || idx >= len(w.index.Items) {
		return
	}
	now := time.Now()
	item := &w.index.Items[idx]
	item.Status = StatusRunning
	item.StartTime = &now
	item.UpdateSeq++
	item.LastUpdated = &now

	w.flushLocked()
}

// ItemFinished records the result of an item.
func (w *IndexWriter) ItemFinished(idx int, r core.DeploymentResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if idx < 0 || idx >= len(w.index.Items) {
		return
	}
	now := time.Now()
	item := &w.index.Items[idx]
	item.Status = statusOf(r)
	item.TargetID = r.TargetID
	item.TargetName = r.TargetName
	item.Resolution = r.Resolution
	item.Error = r.ErrorMessage
	item.ErrorKind = r.ErrorKind
	if !r.StartTime.IsZero() {
		start := r.StartTime
		item.StartTime = &start
	}
	ms := r.Duration.Milliseconds()
	item.Duration = &ms
	item.UpdateSeq++
	item.LastUpdated = &now

	w.flushLocked()
}

// End marks the run as complete.
func (w *IndexWriter) End(cancelled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeRunStatus(cancelled)

	w.flushLocked()
}

// flushLocked writes the index while holding the lock. Write failures are
// logged; reporting never fails a deployment.
func (w *IndexWriter) flushLocked() {
	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = computeSummary(w.index.Items)

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		logger.Error("write report index: %v", err)
		return
	}

	if w.html {
		if err := GenerateHTML(w.outputDir, HTMLConfig{ReportDir: w.outputDir}); err != nil {
			logger.Warn("generate html report: %v", err)
		}
	}
}

// computeSummary calculates summary from item statuses.
func computeSummary(items []ItemEntry) Summary {
	var s Summary
	for _, it := range items {
		s.Total++
		switch it.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

// computeRunStatus determines overall run status from items.
func (w *IndexWriter) computeRunStatus(cancelled bool) Status {
	if cancelled {
		return StatusCancelled
	}

	hasFailure := false
	allComplete := true
	for _, it := range w.index.Items {
		if it.Status == StatusFailed || it.Status == StatusCancelled {
			hasFailure = true
		}
		if !it.Status.IsTerminal() {
			allComplete = false
		}
	}

	if !allComplete {
		return StatusRunning
	}
	if hasFailure {
		return StatusFailed
	}
	return StatusSucceeded
}
