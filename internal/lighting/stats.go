package lighting

import (
	"log"
	"time"
)

// Statistics accumulates per-phase wall-clock timings for one build.
// Bookkeeping only; nothing reads these for control flow.
type Statistics struct {
	Startup       time.Duration
	PrepareLights time.Duration
	Gather        time.Duration
	Export        time.Duration
	Processing    time.Duration
	Import        time.Duration
	Invalidation  time.Duration
	Encoding      time.Duration
	Apply         time.Duration
	Finishing     time.Duration

	Total time.Duration
}

// Merge folds another statistics block into this one.
func (s *Statistics) Merge(o Statistics) {
	s.Startup += o.Startup
	s.PrepareLights += o.PrepareLights
	s.Gather += o.Gather
	s.Export += o.Export
	s.Processing += o.Processing
	s.Import += o.Import
	s.Invalidation += o.Invalidation
	s.Encoding += o.Encoding
	s.Apply += o.Apply
	s.Finishing += o.Finishing
}

// Report logs the phase breakdown with percentages of the total.
func (s *Statistics) Report(logger *log.Logger) {
	logger.Printf("lighting build took %s", s.Total.Round(time.Millisecond))
	phases := []struct {
		name string
		d    time.Duration
	}{
		{"startup", s.Startup},
		{"light prep", s.PrepareLights},
		{"gather", s.Gather},
		{"export", s.Export},
		{"remote processing", s.Processing},
		{"import", s.Import},
		{"invalidation", s.Invalidation},
		{"encoding", s.Encoding},
		{"apply", s.Apply},
		{"finishing", s.Finishing},
	}
	for _, p := range phases {
		if p.d <= 0 {
			continue
		}
		pct := 0.0
		if s.Total > 0 {
			pct = 100 * float64(p.d) / float64(s.Total)
		}
		logger.Printf("  %-17s %10s  %5.1f%%", p.name, p.d.Round(time.Millisecond), pct)
	}
}

// track accumulates elapsed time into d when the returned func runs.
// Usage: defer track(&stats.Gather)().
func track(d *time.Duration) func() {
	start := time.Now()
	return func() { *d += time.Since(start) }
}
