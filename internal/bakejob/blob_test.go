package bakejob

import (
	"testing"

	"github.com/google/uuid"

	"lightforge.dev/internal/scene"
)

func TestSnapshotSectionsRoundTrip(t *testing.T) {
	light := &scene.Light{
		Name:            "sun",
		GUID:            uuid.New(),
		Kind:            scene.LightDirectional,
		Mobility:        scene.MobilityStationary,
		Enabled:         true,
		StaticShadowing: true,
		Color:           [3]float32{1, 0.9, 0.8},
		Intensity:       5,
	}

	var mappings []*scene.Mapping
	var meshes []*scene.Mesh
	// Enough meshes to force multiple mesh sections.
	for i := 0; i < meshBatchSize+3; i++ {
		mesh, mp, _ := quadMapping(16)
		mp.Process = true
		meshes = append(meshes, mesh)
		mappings = append(mappings, mp)
	}

	header := SceneHeaderV1{Version: 1, JobGUID: uuid.NewString(), Quality: "production", LevelName: "persistent"}
	snap := NewSnapshot(header, []scene.Box{{}}, []*scene.Light{light}, meshes, mappings)

	var assembled SceneV1
	for _, sec := range snap.sections {
		payload, err := EncodeSection(sec)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, err := DecodeSection(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		assembled.Merge(decoded)
	}

	if assembled.Header != header {
		t.Fatalf("header = %+v, want %+v", assembled.Header, header)
	}
	if len(assembled.Meshes) != len(meshes) {
		t.Fatalf("meshes = %d, want %d", len(assembled.Meshes), len(meshes))
	}
	if len(assembled.Mappings) != len(mappings) {
		t.Fatalf("mappings = %d, want %d", len(assembled.Mappings), len(mappings))
	}
	if len(assembled.Lights) != 1 || assembled.Lights[0].GUID != [16]byte(light.GUID) {
		t.Fatalf("lights did not survive the round trip")
	}
	if !assembled.Lights[0].Stationary {
		t.Fatalf("stationary flag lost")
	}
	if len(assembled.Meshes[0].Vertices) != 4 {
		t.Fatalf("vertices = %d, want 4", len(assembled.Meshes[0].Vertices))
	}
}

func TestResultBlobRoundTrip(t *testing.T) {
	in := &scene.MappingResult{
		MappingGUID: uuid.New(),
		Lightmap: scene.QuantizedLightmap{
			SizeX:  2,
			SizeY:  2,
			Scale:  [4]float32{2, 2, 2, 1},
			Texels: []byte{1, 2, 3, 255, 4, 5, 6, 255, 7, 8, 9, 255, 10, 11, 12, 255},
		},
		ShadowMasks: []scene.ShadowMask{{LightGUID: uuid.New(), Bits: []byte{255, 0, 255, 0}}},
	}
	payload, err := EncodeResult(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeResult(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.MappingGUID != in.MappingGUID {
		t.Fatalf("guid mismatch")
	}
	if len(out.Lightmap.Texels) != len(in.Lightmap.Texels) {
		t.Fatalf("texels = %d, want %d", len(out.Lightmap.Texels), len(in.Lightmap.Texels))
	}
	if len(out.ShadowMasks) != 1 || out.ShadowMasks[0].Bits[0] != 255 {
		t.Fatalf("shadow masks did not survive")
	}
}

func TestDeterministicGUID(t *testing.T) {
	g := DeterministicGUID(0x01020304)
	want := uuid.UUID{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4}
	if g != want {
		t.Fatalf("guid = %v, want %v", g, want)
	}
	if DeterministicGUID(0) != (uuid.UUID{}) {
		t.Fatalf("index 0 must be the zero GUID")
	}
}
