package lighting

// invalidateStaticLighting clears previously built lighting for everything in
// scope before new results land. Precomputed-visibility caches reset at the
// persistent level only.
func (s *System) invalidateStaticLighting() {
	for _, level := range s.world.Levels {
		if !s.shouldBuildLevel(level) {
			continue
		}
		if level.Persistent && s.world.Settings.PrecomputeVisibility {
			level.VisibilityValid = false
		}
		for _, actor := range level.Actors {
			for _, p := range actor.Primitives {
				if p.BuildEnqueued() {
					p.InvalidateLightingCache()
				}
			}
		}
		if level.Model != nil {
			for _, c := range level.Model.Components {
				if c.BuildEnqueued() {
					c.InvalidateLightingCache()
				}
			}
		}
		level.Dirty = true
	}
}

// postInvalidate is the final pass: primitives that were in scope but never
// enqueued this build get a full cache invalidation now, and the enqueue
// markers are cleared so the next build starts clean.
func (s *System) postInvalidate() {
	for _, level := range s.world.Levels {
		if !s.shouldBuildLevel(level) {
			continue
		}
		for _, actor := range level.Actors {
			for _, p := range actor.Primitives {
				s.postInvalidateOne(p)
			}
		}
		if level.Model != nil {
			for _, c := range level.Model.Components {
				s.postInvalidateOne(c)
			}
		}
	}
}

type buildMarker interface {
	BuildEnqueued() bool
	MarkBuildEnqueued(v bool)
	InvalidateLightingCache()
}

func (s *System) postInvalidateOne(p buildMarker) {
	if p.BuildEnqueued() {
		p.MarkBuildEnqueued(false)
		return
	}
	p.InvalidateLightingCache()
}
