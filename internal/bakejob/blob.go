package bakejob

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"lightforge.dev/internal/scene"
)

// Wire-level scene snapshot. The service decodes sections in the order the
// exporter pushes them; every section is independently gob-encoded and
// zstd-compressed.

type SceneHeaderV1 struct {
	Version        int
	JobGUID        string
	Quality        string
	LevelName      string
	VisibilityOnly bool
}

type BoxV1 struct {
	Min, Max [3]float32
}

type LightV1 struct {
	GUID            [16]byte
	Kind            string
	Stationary      bool
	Position        [3]float32
	Direction       [3]float32
	Radius          float32
	Color           [3]float32
	Intensity       float32
	StaticShadowing bool
}

type VertexV1 struct {
	Position [3]float32
	UV       [2][2]float32
	TangentX [3]float32
	TangentY [3]float32
	TangentZ [3]float32
}

type MeshV1 struct {
	GUID          [16]byte
	OwnerGUID     [16]byte
	Vertices      []VertexV1
	Indices       []uint32
	CastShadow    bool
	VisibilityIDs []int
}

type MappingV1 struct {
	GUID     [16]byte
	MeshGUID [16]byte
	SizeX    int
	SizeY    int
	Process  bool
}

// Section kinds, in push order.
const (
	SectionHeader   = "header"
	SectionVolumes  = "volumes"
	SectionLights   = "lights"
	SectionMeshes   = "meshes"
	SectionMappings = "mappings"
)

// SectionV1 is the unit of amortized export: one kind, one slice of payload.
type SectionV1 struct {
	Kind     string
	Header   *SceneHeaderV1
	Volumes  []BoxV1
	Lights   []LightV1
	Meshes   []MeshV1
	Mappings []MappingV1
}

// SceneV1 is the fully assembled snapshot on the service side.
type SceneV1 struct {
	Header   SceneHeaderV1
	Volumes  []BoxV1
	Lights   []LightV1
	Meshes   []MeshV1
	Mappings []MappingV1
}

func (s *SceneV1) Merge(sec *SectionV1) {
	switch sec.Kind {
	case SectionHeader:
		if sec.Header != nil {
			s.Header = *sec.Header
		}
	case SectionVolumes:
		s.Volumes = append(s.Volumes, sec.Volumes...)
	case SectionLights:
		s.Lights = append(s.Lights, sec.Lights...)
	case SectionMeshes:
		s.Meshes = append(s.Meshes, sec.Meshes...)
	case SectionMappings:
		s.Mappings = append(s.Mappings, sec.Mappings...)
	}
}

func encodeBlob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(enc).Encode(v); err != nil {
		enc.Close()
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBlob(b []byte, v any) error {
	dec, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer dec.Close()
	if err := gob.NewDecoder(dec).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// EncodeSection serializes one export work unit.
func EncodeSection(sec *SectionV1) ([]byte, error) { return encodeBlob(sec) }

// DecodeSection is the service-side inverse of EncodeSection.
func DecodeSection(b []byte) (*SectionV1, error) {
	var sec SectionV1
	if err := decodeBlob(b, &sec); err != nil {
		return nil, err
	}
	return &sec, nil
}

// EncodeResult serializes one baked mapping artifact.
func EncodeResult(res *scene.MappingResult) ([]byte, error) { return encodeBlob(res) }

// DecodeResult deserializes one baked mapping artifact.
func DecodeResult(b []byte) (*scene.MappingResult, error) {
	var res scene.MappingResult
	if err := decodeBlob(b, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
