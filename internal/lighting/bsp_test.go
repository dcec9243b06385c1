package lighting

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightforge.dev/internal/scene"
)

func TestGroupNodesMergesCoplanarAdjacent(t *testing.T) {
	model := scene.NewModel()
	comp := model.AddComponent(true)
	brush := &scene.Actor{Name: "floor", IsBrush: true}

	// Two coplanar quads sharing an edge and one lightmap resolution.
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 0}, {8, 0, 0}, {8, 8, 0}, {0, 8, 0}}, 2)
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{8, 0, 0}, {16, 0, 0}, {16, 8, 0}, {8, 8, 0}}, 2)

	groups := groupNodes(model)
	require.Len(t, groups, 1)
	assert.Equal(t, []int{0, 1}, groups[0].Nodes)
}

func TestGroupNodesSplitsOnResolution(t *testing.T) {
	model := scene.NewModel()
	comp := model.AddComponent(true)
	brush := &scene.Actor{Name: "floor", IsBrush: true}

	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 0}, {8, 0, 0}, {8, 8, 0}, {0, 8, 0}}, 2)
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{8, 0, 0}, {16, 0, 0}, {16, 8, 0}, {8, 8, 0}}, 4)

	groups := groupNodes(model)
	assert.Len(t, groups, 2)
}

func TestGroupNodesSplitsOnPlane(t *testing.T) {
	model := scene.NewModel()
	comp := model.AddComponent(true)
	brush := &scene.Actor{Name: "steps", IsBrush: true}

	// Same orientation but parallel planes further apart than the tolerance.
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 0}, {8, 0, 0}, {8, 8, 0}, {0, 8, 0}}, 2)
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 1}, {8, 0, 1}, {8, 8, 1}, {0, 8, 1}}, 2)

	groups := groupNodes(model)
	assert.Len(t, groups, 2)
}

// expandSelectedSurfs must run to a fixed point: selecting one surface pulls
// in every surface reachable through shared components, however long the
// chain. Layout: s0 and s1 share component c0, s1 and s2 share c1, s2 and s3
// share c2, so selecting s0 must reach s3 three hops away.
func TestExpandSelectedSurfsChain(t *testing.T) {
	model := scene.NewModel()
	for i := 0; i < 3; i++ {
		model.AddComponent(true)
	}
	for i := 0; i < 4; i++ {
		model.Surfs = append(model.Surfs, scene.Surf{LightmapRes: 2})
	}
	addNode := func(surf, comp int) {
		ni := len(model.Nodes)
		model.Nodes = append(model.Nodes, scene.Node{Surf: surf, Component: comp})
		model.Components[comp].Nodes = append(model.Components[comp].Nodes, ni)
	}
	addNode(0, 0)
	addNode(1, 0)
	addNode(1, 1)
	addNode(2, 1)
	addNode(2, 2)
	addNode(3, 2)

	model.Surfs[0].Selected = true
	selected := expandSelectedSurfs(model)
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true, 3: true}, selected)
}

func TestExpandSelectedSurfsFromBrushActor(t *testing.T) {
	model := scene.NewModel()
	comp := model.AddComponent(true)
	brush := &scene.Actor{Name: "wall", IsBrush: true, Selected: true}
	other := &scene.Actor{Name: "other", IsBrush: true}

	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 0}, {4, 0, 0}, {4, 4, 0}, {0, 4, 0}}, 2)
	sep := model.AddComponent(true)
	model.AddQuadSurface(sep, other, [4]mgl32.Vec3{{20, 0, 0}, {24, 0, 0}, {24, 0, 4}, {20, 0, 4}}, 2)

	selected := expandSelectedSurfs(model)
	assert.True(t, selected[0])
	assert.False(t, selected[1])
}

func TestBuildGroupGeometry(t *testing.T) {
	model := scene.NewModel()
	comp := model.AddComponent(true)
	brush := &scene.Actor{Name: "floor", IsBrush: true}
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 0}, {8, 0, 0}, {8, 4, 0}, {0, 4, 0}}, 2)

	groups := groupNodes(model)
	require.Len(t, groups, 1)
	g := groups[0]
	buildGroupGeometry(model, g)

	// 8x4 surface at 2 texels per unit.
	assert.Equal(t, 17, g.SizeX)
	assert.Equal(t, 9, g.SizeY)

	require.Len(t, g.Vertices, 4)
	assert.Len(t, g.Indices, 6)
	for _, v := range g.Vertices {
		u, w := v.UV[1].X(), v.UV[1].Y()
		assert.GreaterOrEqual(t, u, float32(0))
		assert.LessOrEqual(t, u, float32(1))
		assert.GreaterOrEqual(t, w, float32(0))
		assert.LessOrEqual(t, w, float32(1))
	}

	assert.True(t, g.Bounds.Valid())
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, g.Bounds.Min)
	assert.Equal(t, mgl32.Vec3{8, 4, 0}, g.Bounds.Max)
}

func TestBuildGroupGeometryClampsTinySurface(t *testing.T) {
	model := scene.NewModel()
	comp := model.AddComponent(true)
	brush := &scene.Actor{Name: "sliver", IsBrush: true}
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 0}, {0.1, 0, 0}, {0.1, 0.1, 0}, {0, 0.1, 0}}, 2)

	groups := groupNodes(model)
	require.Len(t, groups, 1)
	g := groups[0]
	buildGroupGeometry(model, g)
	assert.GreaterOrEqual(t, g.SizeX, minBSPLightmapDim)
	assert.GreaterOrEqual(t, g.SizeY, minBSPLightmapDim)
	assert.LessOrEqual(t, g.SizeX, maxBSPLightmapDim)
	assert.LessOrEqual(t, g.SizeY, maxBSPLightmapDim)
}
