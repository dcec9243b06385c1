package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Vertex is one static-lighting input vertex. UV[0] is the surface base
// projection, UV[1] the lightmap coordinate.
type Vertex struct {
	Position mgl32.Vec3
	UV       [2]mgl32.Vec2
	TangentX mgl32.Vec3
	TangentY mgl32.Vec3
	TangentZ mgl32.Vec3
}

// Mesh is the geometric input to the lighting computation, distinct from any
// renderable asset. One mesh corresponds to one primitive component or one
// BSP node group.
type Mesh struct {
	GUID      uuid.UUID // rewritten by deterministic ID assignment
	OwnerGUID uuid.UUID

	Vertices []Vertex
	Indices  []uint32
	Bounds   Box

	CastShadow    bool
	VisibilityIDs []int
}

// Mapping is the texel-space counterpart of a Mesh. Process=false means the
// mapping exists for context but is not rebuilt this pass.
type Mapping struct {
	GUID uuid.UUID
	Mesh *Mesh

	SizeX, SizeY int
	Process      bool

	Target ResultTarget
	Desc   string
}

func (m *Mapping) TexelCount() int { return m.SizeX * m.SizeY }

// QuantizedLightmap is the color half of a baked mapping: RGBA-quantized
// texels plus the dequantization scale.
type QuantizedLightmap struct {
	SizeX, SizeY int
	Scale        [4]float32
	Texels       []byte // len == SizeX*SizeY*4
}

// ShadowMask is one light's per-texel visibility for a mapping.
type ShadowMask struct {
	LightGUID uuid.UUID
	Bits      []byte // len == SizeX*SizeY, 0 shadowed / 255 lit
}

// MappingResult is the opaque artifact the bake service returns per mapping.
type MappingResult struct {
	MappingGUID uuid.UUID
	Lightmap    QuantizedLightmap
	ShadowMasks []ShadowMask
}

// ResultTarget consumes a baked mapping. Implemented by primitive components
// and by BSP model components.
type ResultTarget interface {
	ApplyResult(res *MappingResult)
}
