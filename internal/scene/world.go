package scene

// WorldSettings mirrors the per-world toggles the lighting build consults.
type WorldSettings struct {
	PrecomputeVisibility bool
	ForceNoPrecomputed   bool

	// LightingQuality records the quality of the last successful build.
	LightingQuality string
}

type Actor struct {
	Name     string
	Selected bool
	IsBrush  bool

	Primitives []Primitive
	Lights     []*Light
}

type Level struct {
	Name       string
	Persistent bool
	Visible    bool

	Actors []*Actor
	Model  *Model

	Dirty         bool
	GeometryDirty bool

	// Visibility cache state, reset only for the persistent level.
	VisibilityValid bool
}

// World owns the levels and the settings. The orchestrator reads the object
// graph during gather and mutates it only at the invalidate/apply points.
type World struct {
	Levels   []*Level
	Settings WorldSettings

	// Render/commit bookkeeping, bumped by the apply phase.
	RenderStateVersion int
	SurfaceCommits     int
	TexturePurges      int
}

func (w *World) PersistentLevel() *Level {
	for _, l := range w.Levels {
		if l.Persistent {
			return l
		}
	}
	if len(w.Levels) > 0 {
		return w.Levels[0]
	}
	return nil
}

// AllLights returns every light component in the world, with GUIDs ensured.
func (w *World) AllLights() []*Light {
	var out []*Light
	for _, lvl := range w.Levels {
		for _, a := range lvl.Actors {
			for _, l := range a.Lights {
				l.EnsureGUID()
				out = append(out, l)
			}
		}
	}
	return out
}

// RebuildRenderState models clearing and re-registering all world render
// components after lighting changed.
func (w *World) RebuildRenderState() {
	w.RenderStateVersion++
}

// CommitModelSurfaces commits pending BSP surface changes on every level.
func (w *World) CommitModelSurfaces() {
	for _, lvl := range w.Levels {
		if lvl.Model != nil {
			w.SurfaceCommits++
		}
	}
}

// PurgeOldLightmaps marks stale lightmap data for collection.
func (w *World) PurgeOldLightmaps() {
	w.TexturePurges++
}
