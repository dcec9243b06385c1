package lighting

import (
	"strings"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/scene"
)

func (s *System) shouldBuildLevel(l *scene.Level) bool {
	if !l.Visible {
		return false
	}
	if s.opts.ShouldBuildLevel != nil && !s.opts.ShouldBuildLevel(l) {
		return false
	}
	return true
}

// resetBuildMarkers clears per-build markers left by a previous session so
// visibility IDs and enqueue flags are assigned fresh.
func (s *System) resetBuildMarkers() {
	for _, lvl := range s.world.Levels {
		for _, a := range lvl.Actors {
			for _, p := range a.Primitives {
				p.SetVisibilityID(scene.VisibilityNone)
				p.MarkBuildEnqueued(false)
			}
		}
		if lvl.Model == nil {
			continue
		}
		for _, c := range lvl.Model.Components {
			c.SetVisibilityID(scene.VisibilityNone)
			c.MarkBuildEnqueued(false)
		}
	}
}

func (s *System) prepareLights() {
	defer track(&s.stats.PrepareLights)()
	for _, l := range s.world.AllLights() {
		if l.ContributesStatic() {
			s.lights = append(s.lights, l)
		}
	}
}

// gatherScene walks levels and actors and collects every mesh and mapping in
// scope, assigning visibility IDs along the way. Side effects on the live
// world are limited to build markers and level dirty flags.
func (s *System) gatherScene() {
	defer track(&s.stats.Gather)()

	var skipped []string
	found := false
	for _, level := range s.world.Levels {
		if !s.shouldBuildLevel(level) {
			skipped = append(skipped, level.Name)
			continue
		}
		if level.GeometryDirty {
			s.results.Warningf("level %q has unbuilt geometry, BSP lighting may be stale", level.Name)
		}
		markDirty := false
		if level.Model != nil && !s.opts.VisibilityOnly {
			if s.gatherBSP(level) > 0 {
				found = true
			}
		}
		for _, actor := range level.Actors {
			buildActor := !s.opts.SelectedOnly || actor.Selected
			for _, p := range actor.Primitives {
				if !p.Registered() {
					continue
				}
				info := p.LightingInfo(s.relevantLights(p.Bounds()))
				if len(info.Meshes) != len(info.Mappings) {
					s.results.Warningf("primitive on %q contributed %d meshes but %d mappings", actor.Name, len(info.Meshes), len(info.Mappings))
				}
				if len(info.Meshes) > 0 && p.Mobility() == scene.MobilityStatic {
					id := s.nextVisibilityID
					s.nextVisibilityID++
					if p.VisibilityID() != id && s.world.Settings.PrecomputeVisibility {
						markDirty = true
					}
					p.SetVisibilityID(id)
					info.VisibilityID = id
				}
				if buildActor && len(info.Mappings) > 0 {
					found = true
					p.MarkBuildEnqueued(true)
				}
				s.addPrimitiveInfo(info, buildActor)
			}
		}
		if markDirty {
			level.Dirty = true
		}
	}

	if len(skipped) > 0 {
		s.results.Warningf("lighting was not built for: %s", strings.Join(skipped, ", "))
	}
	if s.opts.SelectedOnly {
		s.results.Warningf("partial rebuild: shadows between rebuilt and untouched objects are stale until a full rebuild")
		if !found {
			s.results.Errorf("nothing selected to build lighting for")
		}
	}
}

func (s *System) relevantLights(bounds scene.Box) []*scene.Light {
	var out []*scene.Light
	for _, l := range s.lights {
		if l.Affects(bounds) {
			out = append(out, l)
		}
	}
	return out
}

// addPrimitiveInfo folds one primitive's contribution into the session.
// Deterministic GUIDs are stamped here in gather order when sorting is off;
// the sorted path stamps them afterwards.
func (s *System) addPrimitiveInfo(info scene.PrimitiveInfo, build bool) {
	for _, mesh := range info.Meshes {
		if info.VisibilityID != scene.VisibilityNone {
			mesh.VisibilityIDs = append(mesh.VisibilityIDs, info.VisibilityID)
		}
		if build && !s.opts.SortMappings {
			mesh.GUID = bakejob.DeterministicGUID(s.deterministicIndex)
			s.deterministicIndex++
		}
		s.meshes = append(s.meshes, mesh)
		s.lightingBounds.Union(mesh.Bounds)
		if mesh.CastShadow {
			s.importanceBounds.Union(mesh.Bounds)
		}
	}
	for _, mp := range info.Mappings {
		if build {
			mp.Process = true
		}
		s.mappings = append(s.mappings, mp)
	}
}
