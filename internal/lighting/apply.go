package lighting

import (
	"context"
	"time"

	"lightforge.dev/internal/scene"
)

// finish completes the build: invalidate stale data, bulk-import whatever the
// immediate path did not already apply, reassign stationary shadow channels,
// encode textures, close the remote job, then commit or discard. The order
// matters: old data must be gone before new data lands, and the job closes
// before the world is touched for rendering.
func (s *System) finish(ctx context.Context, apply bool) bool {
	s.stage = StageImport
	defer track(&s.stats.Finishing)()

	inv := track(&s.stats.Invalidation)
	s.invalidateStaticLighting()
	inv()

	success := true
	if apply && s.client != nil {
		imp := track(&s.stats.Import)
		if err := s.client.ImportAll(ctx); err != nil {
			s.results.Errorf("importing baked mappings: %v", err)
			success = false
		}
		imp()
		s.log.Printf("imported %d baked mappings", s.client.ImportedCount())
	}

	if apply && success && !s.opts.VisibilityOnly {
		s.reassignStationaryChannels()
	}

	if apply {
		enc := track(&s.stats.Encoding)
		s.encodeTextures(success)
		enc()
	}

	if s.client != nil {
		if err := s.client.CloseJob(ctx); err != nil {
			s.results.Warningf("closing bake job: %v", err)
		}
	}

	ap := track(&s.stats.Apply)
	s.applyNewLightingData(apply && success && !s.cancelled)
	ap()

	s.postInvalidate()

	s.stats.Total = time.Since(s.startedAt)
	s.stats.Report(s.log)
	for _, e := range s.results.Entries() {
		s.log.Printf("build %s: %s", e.Level, e.Text)
	}
	return success
}

// Stationary lights share four shadow channels. Each light takes the lowest
// channel unused by any overlapping, already-assigned stationary light;
// overflow lights get no channel and fall back to movable-style shadows.
const stationaryChannelCount = 4

func (s *System) reassignStationaryChannels() {
	var assigned []*scene.Light
	for _, l := range s.lights {
		if l.Mobility != scene.MobilityStationary || !l.StaticShadowing {
			continue
		}
		used := [stationaryChannelCount]bool{}
		for _, prev := range assigned {
			if prev.ShadowChannel >= 0 && lightsOverlap(l, prev) {
				used[prev.ShadowChannel] = true
			}
		}
		l.ShadowChannel = -1
		for ch := 0; ch < stationaryChannelCount; ch++ {
			if !used[ch] {
				l.ShadowChannel = ch
				break
			}
		}
		if l.ShadowChannel < 0 {
			s.results.Warningf("stationary light %q overlaps more than %d others and will not cast static shadows", l.Name, stationaryChannelCount-1)
		}
		assigned = append(assigned, l)
	}
}

func lightsOverlap(a, b *scene.Light) bool {
	if a.Radius <= 0 || b.Radius <= 0 {
		return true
	}
	d := a.Position.Sub(b.Position)
	r := a.Radius + b.Radius
	return d.Dot(d) <= r*r
}

// encodeTextures packs every rebuilt mapping's baked data for rendering.
// Preview builds take the fast path.
func (s *System) encodeTextures(lightingSuccessful bool) {
	if !lightingSuccessful {
		return
	}
	fast := s.opts.Quality == QualityPreview
	done := make(map[scene.ResultTarget]bool)
	for _, m := range s.mappings {
		if !m.Process || m.Target == nil || done[m.Target] {
			continue
		}
		done[m.Target] = true
		if enc, ok := m.Target.(interface{ EncodeTextures(fast bool) }); ok {
			enc.EncodeTextures(fast)
		}
	}
}

// applyNewLightingData commits (or discards) the build's pending results
// against the live world. On commit the world's render state is rebuilt, old
// lightmaps are purged and BSP surface changes are committed; on discard the
// previous lighting stays untouched.
func (s *System) applyNewLightingData(keep bool) {
	for _, level := range s.world.Levels {
		if level.Model != nil && s.shouldBuildLevel(level) {
			level.Model.ApplyTempElements(keep)
		}
	}
	if !keep {
		return
	}
	for _, l := range s.lights {
		l.PrecomputedValid = true
	}
	if !s.opts.SelectedOnly && !s.opts.VisibilityOnly {
		s.world.Settings.LightingQuality = s.opts.Quality.String()
	}
	s.world.PurgeOldLightmaps()
	s.world.RebuildRenderState()
	s.world.CommitModelSurfaces()
}
