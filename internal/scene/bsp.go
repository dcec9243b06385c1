package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// BSPTexelScale converts world units to base-projection texture coordinates.
const BSPTexelScale = 32.0

// Surf is one BSP surface plane. Base indexes Points; TexU, TexV and Normal
// index Vectors.
type Surf struct {
	Actor    *Actor // owning brush actor, may be nil
	Selected bool

	Base   int
	TexU   int
	TexV   int
	Normal int

	// LightmapRes is the surface's lightmap density in texels per world unit.
	LightmapRes float32
}

// Node is a surface fragment: a convex vertex ring referencing the model's
// vertex pool.
type Node struct {
	Surf      int
	Component int
	VertPool  int
	NumVerts  int
}

type Vert struct {
	Point int
}

// ModelComponent groups nodes for rendering. BSP mappings can span components,
// so baked results land here through the model's cached mappings.
type ModelComponent struct {
	Index      int
	Nodes      []int
	CastShadow bool

	visibilityID int
	enqueued     bool

	Baked      []*MappingResult
	pending    []*MappingResult
	EncodedTex []byte
}

func (c *ModelComponent) VisibilityID() int        { return c.visibilityID }
func (c *ModelComponent) SetVisibilityID(id int)   { c.visibilityID = id }
func (c *ModelComponent) BuildEnqueued() bool      { return c.enqueued }
func (c *ModelComponent) MarkBuildEnqueued(v bool) { c.enqueued = v }

func (c *ModelComponent) ApplyResult(res *MappingResult) {
	c.pending = append(c.pending, res)
}

func (c *ModelComponent) InvalidateLightingCache() {
	c.Baked = nil
	c.pending = nil
	c.EncodedTex = nil
}

// EncodeTextures packs the pending baked mappings for rendering. Runs before
// ApplyTempElements commits them.
func (c *ModelComponent) EncodeTextures(fast bool) {
	c.EncodedTex = nil
	for _, res := range c.pending {
		c.EncodedTex = append(c.EncodedTex, encodeLightmapTexels(res, fast)...)
	}
}

// Model is a level's BSP geometry.
type Model struct {
	Points  []mgl32.Vec3
	Vectors []mgl32.Vec3
	Verts   []Vert
	Surfs   []Surf
	Nodes   []Node

	Components []*ModelComponent

	// Build bookkeeping, reset at the start of each grouping pass.
	CachedMappings   []*Mapping
	IncompleteGroups int
	InvalidForBuild  bool
}

func NewModel() *Model {
	return &Model{}
}

func (m *Model) AddComponent(castShadow bool) *ModelComponent {
	c := &ModelComponent{Index: len(m.Components), CastShadow: castShadow, visibilityID: VisibilityNone}
	m.Components = append(m.Components, c)
	return c
}

func (m *Model) addVector(v mgl32.Vec3) int {
	m.Vectors = append(m.Vectors, v)
	return len(m.Vectors) - 1
}

// addPoint interns exact coordinates so shared corners resolve to one index.
// Node adjacency detection relies on this.
func (m *Model) addPoint(p mgl32.Vec3) int {
	for i, q := range m.Points {
		if q == p {
			return i
		}
	}
	m.Points = append(m.Points, p)
	return len(m.Points) - 1
}

// AddQuadSurface appends one surface with a single four-vertex node to the
// given component. Corners must be coplanar and wound counter-clockwise
// around the normal.
func (m *Model) AddQuadSurface(comp *ModelComponent, actor *Actor, corners [4]mgl32.Vec3, lightmapRes float32) int {
	u := corners[1].Sub(corners[0])
	v := corners[3].Sub(corners[0])
	n := u.Cross(v)

	surfIdx := len(m.Surfs)
	m.Surfs = append(m.Surfs, Surf{
		Actor:       actor,
		Base:        m.addPoint(corners[0]),
		TexU:        m.addVector(u.Normalize()),
		TexV:        m.addVector(v.Normalize()),
		Normal:      m.addVector(n.Normalize()),
		LightmapRes: lightmapRes,
	})

	pool := len(m.Verts)
	for _, c := range corners {
		m.Verts = append(m.Verts, Vert{Point: m.addPoint(c)})
	}
	nodeIdx := len(m.Nodes)
	m.Nodes = append(m.Nodes, Node{
		Surf:      surfIdx,
		Component: comp.Index,
		VertPool:  pool,
		NumVerts:  4,
	})
	comp.Nodes = append(comp.Nodes, nodeIdx)
	return surfIdx
}

// ResetBuildState clears the per-build grouping bookkeeping.
func (m *Model) ResetBuildState() {
	m.IncompleteGroups = 0
	m.CachedMappings = nil
	m.InvalidForBuild = false
}

// ApplyTempElements commits or discards pending baked data on every
// component. Called once at the end of a build.
func (m *Model) ApplyTempElements(keep bool) {
	for _, c := range m.Components {
		if keep && len(c.pending) > 0 {
			c.Baked = c.pending
		}
		c.pending = nil
	}
}
