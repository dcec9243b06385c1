package lighting

import (
	"fmt"
	"log"
)

// Notifier is the progress/notification boundary. The orchestrator emits
// events and percent-complete text here; rendering them is someone else's
// problem.
type Notifier interface {
	BuildStarted()
	Progress(percent float64, text string)

	// BuildDone fires on success. waiting means results are pending an
	// explicit apply/discard decision.
	BuildDone(waiting bool)
	BuildFailed(reason string)
	BuildCancelled()
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) BuildStarted()            {}
func (NopNotifier) Progress(float64, string) {}
func (NopNotifier) BuildDone(bool)           {}
func (NopNotifier) BuildFailed(string)       {}
func (NopNotifier) BuildCancelled()          {}

// LogNotifier writes notifications to a standard logger. Used by the
// headless driver.
type LogNotifier struct {
	Log *log.Logger
}

func (n LogNotifier) BuildStarted() { n.Log.Printf("lighting build started") }

func (n LogNotifier) Progress(percent float64, text string) {
	n.Log.Printf("%s (%.0f%%)", text, percent*100)
}

func (n LogNotifier) BuildDone(waiting bool) {
	if waiting {
		n.Log.Printf("lighting build complete, results waiting for apply")
		return
	}
	n.Log.Printf("lighting build complete")
}

func (n LogNotifier) BuildFailed(reason string) { n.Log.Printf("lighting build failed: %s", reason) }
func (n LogNotifier) BuildCancelled()           { n.Log.Printf("lighting build cancelled") }

// ResultsLog accumulates warnings and errors raised during a build for later
// review, independent of the overall outcome.
type ResultsLog struct {
	entries []ResultEntry
}

type ResultEntry struct {
	Level string // "warning" or "error"
	Text  string
}

func (r *ResultsLog) Warningf(format string, args ...any) {
	r.entries = append(r.entries, ResultEntry{Level: "warning", Text: fmt.Sprintf(format, args...)})
}

func (r *ResultsLog) Errorf(format string, args ...any) {
	r.entries = append(r.entries, ResultEntry{Level: "error", Text: fmt.Sprintf(format, args...)})
}

func (r *ResultsLog) Entries() []ResultEntry { return r.entries }

func (r *ResultsLog) HasErrors() bool {
	for _, e := range r.entries {
		if e.Level == "error" {
			return true
		}
	}
	return false
}
