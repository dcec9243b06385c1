package lighting

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/scene"
)

// NodeGroup aggregates coplanar, adjacent BSP nodes sharing one lightmap
// resolution into a single lighting unit. Built fresh per build and discarded
// after its Mesh+Mapping pair is emitted.
type NodeGroup struct {
	Nodes []int

	SizeX, SizeY int
	WorldToMap   mgl32.Mat4

	Vertices []scene.Vertex
	Indices  []uint32
	Bounds   scene.Box
}

const (
	coplanarNormalTol = 0.999
	coplanarDistTol   = 0.1

	minBSPLightmapDim = 2
	maxBSPLightmapDim = 1024
)

// gatherBSP emits one Mesh+Mapping pair per node group of the level's model
// and registers the mappings for application at the end of the build.
// Returns the number of groups flagged for rebuild.
func (s *System) gatherBSP(level *scene.Level) int {
	model := level.Model
	model.ResetBuildState()
	if len(model.Nodes) == 0 {
		return 0
	}

	var selected map[int]bool
	if s.opts.SelectedOnly {
		selected = expandSelectedSurfs(model)
	}

	built := 0
	markDirty := false
	for gi, g := range groupNodes(model) {
		build := selected == nil || groupTouchesSurfs(model, g, selected)
		buildGroupGeometry(model, g)

		var visIDs []int
		castShadow := false
		var target *scene.ModelComponent
		for _, ci := range groupComponents(model, g) {
			c := model.Components[ci]
			if target == nil {
				target = c
			}
			if c.CastShadow {
				castShadow = true
			}
			if c.VisibilityID() == scene.VisibilityNone {
				c.SetVisibilityID(s.nextVisibilityID)
				s.nextVisibilityID++
				if s.world.Settings.PrecomputeVisibility {
					markDirty = true
				}
			}
			visIDs = append(visIDs, c.VisibilityID())
			if build {
				c.MarkBuildEnqueued(true)
			}
		}

		mesh := &scene.Mesh{
			GUID:          uuid.New(),
			Vertices:      g.Vertices,
			Indices:       g.Indices,
			Bounds:        g.Bounds,
			CastShadow:    castShadow,
			VisibilityIDs: visIDs,
		}
		if build && !s.opts.SortMappings {
			mesh.GUID = bakejob.DeterministicGUID(s.deterministicIndex)
			s.deterministicIndex++
		}
		mapping := &scene.Mapping{
			GUID:    uuid.New(),
			Mesh:    mesh,
			SizeX:   g.SizeX,
			SizeY:   g.SizeY,
			Process: build,
			Target:  target,
			Desc:    fmt.Sprintf("%s BSP group %d (%d nodes)", level.Name, gi, len(g.Nodes)),
		}

		s.meshes = append(s.meshes, mesh)
		s.mappings = append(s.mappings, mapping)
		s.lightingBounds.Union(mesh.Bounds)
		if castShadow {
			s.importanceBounds.Union(mesh.Bounds)
		}

		model.CachedMappings = append(model.CachedMappings, mapping)
		if build {
			built++
		} else {
			model.IncompleteGroups++
		}
	}
	if markDirty {
		level.Dirty = true
	}
	return built
}

// groupNodes partitions the model's nodes into coplanar, adjacent,
// same-resolution groups. Union-find over node indices: nodes on the same
// surface merge outright, nodes on different surfaces merge when they share
// a point and are compatible. Groups come out ordered by lowest node index.
func groupNodes(model *scene.Model) []*NodeGroup {
	parent := make([]int, len(model.Nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	firstOnSurf := make(map[int]int)
	byPoint := make(map[int][]int)
	for i := range model.Nodes {
		node := &model.Nodes[i]
		if j, ok := firstOnSurf[node.Surf]; ok {
			union(i, j)
		} else {
			firstOnSurf[node.Surf] = i
		}
		for v := 0; v < node.NumVerts; v++ {
			pt := model.Verts[node.VertPool+v].Point
			byPoint[pt] = append(byPoint[pt], i)
		}
	}
	for _, ns := range byPoint {
		for x := 0; x < len(ns); x++ {
			for y := x + 1; y < len(ns); y++ {
				if nodesCompatible(model, ns[x], ns[y]) {
					union(ns[x], ns[y])
				}
			}
		}
	}

	byRoot := make(map[int]*NodeGroup)
	var roots []int
	for i := range model.Nodes {
		r := find(i)
		g, ok := byRoot[r]
		if !ok {
			g = &NodeGroup{}
			byRoot[r] = g
			roots = append(roots, r)
		}
		g.Nodes = append(g.Nodes, i)
	}
	sort.Ints(roots)
	groups := make([]*NodeGroup, 0, len(roots))
	for _, r := range roots {
		groups = append(groups, byRoot[r])
	}
	return groups
}

func nodesCompatible(model *scene.Model, a, b int) bool {
	sa := &model.Surfs[model.Nodes[a].Surf]
	sb := &model.Surfs[model.Nodes[b].Surf]
	if sa.LightmapRes != sb.LightmapRes {
		return false
	}
	na := model.Vectors[sa.Normal]
	nb := model.Vectors[sb.Normal]
	if na.Dot(nb) < coplanarNormalTol {
		return false
	}
	da := na.Dot(model.Points[sa.Base])
	db := nb.Dot(model.Points[sb.Base])
	return abs32(da-db) <= coplanarDistTol
}

// expandSelectedSurfs resolves the user's selection to a surface set: every
// explicitly selected surface plus every surface owned by a selected brush
// actor, then grown until no node sharing a component with a selected surface
// remains outside the set. Runs to a fixed point so selections spanning long
// component chains converge.
func expandSelectedSurfs(model *scene.Model) map[int]bool {
	selected := make(map[int]bool)
	for i := range model.Surfs {
		surf := &model.Surfs[i]
		if surf.Selected || (surf.Actor != nil && surf.Actor.Selected && surf.Actor.IsBrush) {
			selected[i] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for i := range model.Nodes {
			if !selected[model.Nodes[i].Surf] {
				continue
			}
			comp := model.Components[model.Nodes[i].Component]
			for _, ni := range comp.Nodes {
				if sf := model.Nodes[ni].Surf; !selected[sf] {
					selected[sf] = true
					changed = true
				}
			}
		}
	}
	return selected
}

func groupTouchesSurfs(model *scene.Model, g *NodeGroup, surfs map[int]bool) bool {
	for _, ni := range g.Nodes {
		if surfs[model.Nodes[ni].Surf] {
			return true
		}
	}
	return false
}

// groupComponents returns the distinct owning components of a group's nodes,
// in first-seen order.
func groupComponents(model *scene.Model, g *NodeGroup) []int {
	seen := make(map[int]bool)
	var out []int
	for _, ni := range g.Nodes {
		ci := model.Nodes[ni].Component
		if !seen[ci] {
			seen[ci] = true
			out = append(out, ci)
		}
	}
	return out
}

// buildGroupGeometry fills in the group's lightmap dimensions, world-to-map
// transform, vertex and index buffers and bounds. The representative surface
// of the first node supplies the projection basis for the whole group.
func buildGroupGeometry(model *scene.Model, g *NodeGroup) {
	rep := &model.Surfs[model.Nodes[g.Nodes[0]].Surf]
	base := model.Points[rep.Base]
	texU := model.Vectors[rep.TexU]
	texV := model.Vectors[rep.TexV]
	normal := model.Vectors[rep.Normal]

	first := true
	var minU, maxU, minV, maxV float32
	for _, ni := range g.Nodes {
		node := &model.Nodes[ni]
		for i := 0; i < node.NumVerts; i++ {
			p := model.Points[model.Verts[node.VertPool+i].Point]
			g.Bounds.Add(p)
			u := p.Sub(base).Dot(texU)
			v := p.Sub(base).Dot(texV)
			if first {
				minU, maxU, minV, maxV = u, u, v, v
				first = false
				continue
			}
			minU, maxU = min(minU, u), max(maxU, u)
			minV, maxV = min(minV, v), max(maxV, v)
		}
	}

	du := maxU - minU
	dv := maxV - minV
	if du < 1e-4 {
		du = 1
	}
	if dv < 1e-4 {
		dv = 1
	}
	g.SizeX = clampDim(int(du*rep.LightmapRes) + 1)
	g.SizeY = clampDim(int(dv*rep.LightmapRes) + 1)

	dist := normal.Dot(base)
	g.WorldToMap = rowMat(
		mgl32.Vec4{texU.X() / du, texU.Y() / du, texU.Z() / du, -(base.Dot(texU) + minU) / du},
		mgl32.Vec4{texV.X() / dv, texV.Y() / dv, texV.Z() / dv, -(base.Dot(texV) + minV) / dv},
		mgl32.Vec4{normal.X(), normal.Y(), normal.Z(), -dist},
		mgl32.Vec4{0, 0, 0, 1},
	)

	for _, ni := range g.Nodes {
		node := &model.Nodes[ni]
		baseVert := uint32(len(g.Vertices))
		for i := 0; i < node.NumVerts; i++ {
			p := model.Points[model.Verts[node.VertPool+i].Point]
			q := g.WorldToMap.Mul4x1(mgl32.Vec4{p.X(), p.Y(), p.Z(), 1})
			g.Vertices = append(g.Vertices, scene.Vertex{
				Position: p,
				UV: [2]mgl32.Vec2{
					{p.Sub(base).Dot(texU) / scene.BSPTexelScale, p.Sub(base).Dot(texV) / scene.BSPTexelScale},
					{q.X(), q.Y()},
				},
				TangentX: texU,
				TangentY: texV,
				TangentZ: normal,
			})
		}
		// Fan triangulation of the node's convex vertex ring.
		for i := 2; i < node.NumVerts; i++ {
			g.Indices = append(g.Indices, baseVert, baseVert+uint32(i), baseVert+uint32(i-1))
		}
	}
}

func clampDim(d int) int {
	if d < minBSPLightmapDim {
		return minBSPLightmapDim
	}
	if d > maxBSPLightmapDim {
		return maxBSPLightmapDim
	}
	return d
}

// rowMat builds a Mat4 from rows. mgl32 matrices are column-major.
func rowMat(r0, r1, r2, r3 mgl32.Vec4) mgl32.Mat4 {
	return mgl32.Mat4{
		r0[0], r1[0], r2[0], r3[0],
		r0[1], r1[1], r2[1], r3[1],
		r0[2], r1[2], r2[2], r3[2],
		r0[3], r1[3], r2[3], r3[3],
	}
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
