package service

import (
	"math"

	"github.com/google/uuid"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/scene"
)

// The flat-fill baker: every texel of a mapping gets the summed contribution
// of the relevant lights at the mapping mesh's centroid. The point is to
// produce structurally real artifacts (quantized lightmap + per-light shadow
// masks keyed by mapping GUID); the radiosity math itself is out of scope.

const attenuationScale = 100.0

// BakeMapping computes one mapping's result from the assembled scene.
func BakeMapping(sc *bakejob.SceneV1, mp bakejob.MappingV1) *scene.MappingResult {
	res := &scene.MappingResult{MappingGUID: uuid.UUID(mp.GUID)}
	if sc.Header.VisibilityOnly {
		return res
	}

	mesh := findMesh(sc, mp.MeshGUID)
	center := meshCentroid(mesh)

	var acc [3]float32
	var masks []scene.ShadowMask
	texels := mp.SizeX * mp.SizeY
	for _, l := range sc.Lights {
		d := dist3(center, l.Position)
		if l.Radius > 0 && d > l.Radius {
			continue
		}
		atten := float32(1.0)
		if l.Kind != "DIRECTIONAL" && l.Kind != "SKY" {
			n := d / attenuationScale
			atten = 1 / (1 + n*n)
		}
		for i := 0; i < 3; i++ {
			acc[i] += l.Color[i] * l.Intensity * atten
		}
		if l.StaticShadowing && texels > 0 {
			bits := make([]byte, texels)
			for i := range bits {
				bits[i] = 255
			}
			masks = append(masks, scene.ShadowMask{LightGUID: uuid.UUID(l.GUID), Bits: bits})
		}
	}

	scale := max(acc[0], max(acc[1], acc[2]))
	if scale < 1e-3 {
		scale = 1
	}
	lm := scene.QuantizedLightmap{
		SizeX: mp.SizeX,
		SizeY: mp.SizeY,
		Scale: [4]float32{scale, scale, scale, 1},
	}
	lm.Texels = make([]byte, 0, texels*4)
	var quant [4]byte
	for i := 0; i < 3; i++ {
		q := 255 * acc[i] / scale
		if q > 255 {
			q = 255
		}
		quant[i] = byte(q)
	}
	quant[3] = 255
	for i := 0; i < texels; i++ {
		lm.Texels = append(lm.Texels, quant[0], quant[1], quant[2], quant[3])
	}
	res.Lightmap = lm
	res.ShadowMasks = masks
	return res
}

func findMesh(sc *bakejob.SceneV1, guid [16]byte) *bakejob.MeshV1 {
	for i := range sc.Meshes {
		if sc.Meshes[i].GUID == guid {
			return &sc.Meshes[i]
		}
	}
	return nil
}

func meshCentroid(m *bakejob.MeshV1) [3]float32 {
	var c [3]float32
	if m == nil || len(m.Vertices) == 0 {
		return c
	}
	for _, v := range m.Vertices {
		for i := 0; i < 3; i++ {
			c[i] += v.Position[i]
		}
	}
	n := float32(len(m.Vertices))
	for i := 0; i < 3; i++ {
		c[i] /= n
	}
	return c
}

func dist3(a, b [3]float32) float32 {
	var d2 float32
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		d2 += d * d
	}
	return float32(math.Sqrt(float64(d2)))
}
