package scene

import (
	"github.com/google/uuid"
)

// VisibilityNone marks a component with no assigned visibility id.
const VisibilityNone = -1

// PrimitiveInfo is a primitive component's static lighting contribution.
// Meshes and Mappings are always the same length.
type PrimitiveInfo struct {
	Meshes       []*Mesh
	Mappings     []*Mapping
	VisibilityID int
}

// Primitive is the capability interface a component kind implements to take
// part in static lighting builds.
type Primitive interface {
	Registered() bool
	Mobility() Mobility
	Bounds() Box

	VisibilityID() int
	SetVisibilityID(id int)

	BuildEnqueued() bool
	MarkBuildEnqueued(v bool)

	// LightingInfo returns the meshes and mappings to bake, given the lights
	// relevant to this primitive.
	LightingInfo(relevant []*Light) PrimitiveInfo

	// InvalidateLightingCache drops any previously baked data.
	InvalidateLightingCache()
}

// MeshComponent is the standard primitive: a fixed triangle list with one
// lightmap mapping.
type MeshComponent struct {
	Name string
	GUID uuid.UUID

	Verts   []Vertex
	Indices []uint32

	LightmapSize int
	CastShadow   bool

	ComponentMobility Mobility
	registered        bool
	visibilityID      int
	enqueued          bool

	// Baked state.
	Baked        *MappingResult
	RelevantSet  []uuid.UUID // light GUIDs captured at apply time
	EncodedTex   []byte
	InvalidCount int
}

func NewMeshComponent(name string, verts []Vertex, indices []uint32, lightmapSize int) *MeshComponent {
	return &MeshComponent{
		Name:              name,
		GUID:              uuid.New(),
		Verts:             verts,
		Indices:           indices,
		LightmapSize:      lightmapSize,
		CastShadow:        true,
		ComponentMobility: MobilityStatic,
		registered:        true,
		visibilityID:      VisibilityNone,
	}
}

func (c *MeshComponent) Registered() bool         { return c.registered }
func (c *MeshComponent) SetRegistered(v bool)     { c.registered = v }
func (c *MeshComponent) Mobility() Mobility       { return c.ComponentMobility }
func (c *MeshComponent) VisibilityID() int        { return c.visibilityID }
func (c *MeshComponent) SetVisibilityID(id int)   { c.visibilityID = id }
func (c *MeshComponent) BuildEnqueued() bool      { return c.enqueued }
func (c *MeshComponent) MarkBuildEnqueued(v bool) { c.enqueued = v }

func (c *MeshComponent) Bounds() Box {
	var b Box
	for i := range c.Verts {
		b.Add(c.Verts[i].Position)
	}
	return b
}

func (c *MeshComponent) LightingInfo(relevant []*Light) PrimitiveInfo {
	if len(c.Verts) == 0 || c.LightmapSize <= 0 {
		return PrimitiveInfo{VisibilityID: VisibilityNone}
	}
	mesh := &Mesh{
		GUID:       uuid.New(),
		OwnerGUID:  c.GUID,
		Vertices:   c.Verts,
		Indices:    c.Indices,
		Bounds:     c.Bounds(),
		CastShadow: c.CastShadow,
	}
	mapping := &Mapping{
		GUID:   uuid.New(),
		Mesh:   mesh,
		SizeX:  c.LightmapSize,
		SizeY:  c.LightmapSize,
		Target: c,
		Desc:   c.Name,
	}
	c.RelevantSet = c.RelevantSet[:0]
	for _, l := range relevant {
		c.RelevantSet = append(c.RelevantSet, l.GUID)
	}
	return PrimitiveInfo{
		Meshes:       []*Mesh{mesh},
		Mappings:     []*Mapping{mapping},
		VisibilityID: VisibilityNone,
	}
}

func (c *MeshComponent) InvalidateLightingCache() {
	c.Baked = nil
	c.EncodedTex = nil
	c.RelevantSet = nil
	c.InvalidCount++
}

func (c *MeshComponent) ApplyResult(res *MappingResult) {
	c.Baked = res
}

// EncodeTextures packs the baked lightmap into the component's renderable
// encoding. fast trades compression for iteration speed on preview builds.
func (c *MeshComponent) EncodeTextures(fast bool) {
	c.EncodedTex = encodeLightmapTexels(c.Baked, fast)
}

func encodeLightmapTexels(res *MappingResult, fast bool) []byte {
	if res == nil || len(res.Lightmap.Texels) == 0 {
		return nil
	}
	flags := byte(0)
	if fast {
		flags = 1
	}
	out := make([]byte, 0, len(res.Lightmap.Texels)+2)
	out = append(out, 1, flags)
	return append(out, res.Lightmap.Texels...)
}
