package bakejob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"lightforge.dev/internal/protocol"
	"lightforge.dev/internal/scene"
)

// Export batching. Meshes dominate payload size, so they get the smallest
// batches; everything else ships in one section each.
const (
	meshBatchSize    = 16
	mappingBatchSize = 128
)

// Snapshot is the client-side staging of a gathered scene, already converted
// to wire records and split into export work units.
type Snapshot struct {
	Header   SceneHeaderV1
	sections []*SectionV1
}

// NewSnapshot converts the gathered arena into wire sections. The caller
// keeps ownership of the scene records; nothing here retains them.
func NewSnapshot(header SceneHeaderV1, volumes []scene.Box, lights []*scene.Light, meshes []*scene.Mesh, mappings []*scene.Mapping) *Snapshot {
	snap := &Snapshot{Header: header}
	h := header
	snap.sections = append(snap.sections, &SectionV1{Kind: SectionHeader, Header: &h})

	var vols []BoxV1
	for _, b := range volumes {
		vols = append(vols, BoxV1{Min: [3]float32(b.Min), Max: [3]float32(b.Max)})
	}
	snap.sections = append(snap.sections, &SectionV1{Kind: SectionVolumes, Volumes: vols})

	var ls []LightV1
	for _, l := range lights {
		ls = append(ls, LightV1{
			GUID:            [16]byte(l.GUID),
			Kind:            string(l.Kind),
			Stationary:      l.Mobility == scene.MobilityStationary,
			Position:        [3]float32(l.Position),
			Direction:       [3]float32(l.Direction),
			Radius:          l.Radius,
			Color:           l.Color,
			Intensity:       l.Intensity,
			StaticShadowing: l.StaticShadowing,
		})
	}
	snap.sections = append(snap.sections, &SectionV1{Kind: SectionLights, Lights: ls})

	for start := 0; start < len(meshes); start += meshBatchSize {
		end := min(start+meshBatchSize, len(meshes))
		sec := &SectionV1{Kind: SectionMeshes}
		for _, m := range meshes[start:end] {
			sec.Meshes = append(sec.Meshes, meshToWire(m))
		}
		snap.sections = append(snap.sections, sec)
	}

	for start := 0; start < len(mappings); start += mappingBatchSize {
		end := min(start+mappingBatchSize, len(mappings))
		sec := &SectionV1{Kind: SectionMappings}
		for _, m := range mappings[start:end] {
			sec.Mappings = append(sec.Mappings, MappingV1{
				GUID:     [16]byte(m.GUID),
				MeshGUID: [16]byte(m.Mesh.GUID),
				SizeX:    m.SizeX,
				SizeY:    m.SizeY,
				Process:  m.Process,
			})
		}
		snap.sections = append(snap.sections, sec)
	}
	return snap
}

func meshToWire(m *scene.Mesh) MeshV1 {
	wm := MeshV1{
		GUID:          [16]byte(m.GUID),
		OwnerGUID:     [16]byte(m.OwnerGUID),
		Indices:       m.Indices,
		CastShadow:    m.CastShadow,
		VisibilityIDs: m.VisibilityIDs,
	}
	for _, v := range m.Vertices {
		wm.Vertices = append(wm.Vertices, VertexV1{
			Position: [3]float32(v.Position),
			UV:       [2][2]float32{[2]float32(v.UV[0]), [2]float32(v.UV[1])},
			TangentX: [3]float32(v.TangentX),
			TangentY: [3]float32(v.TangentY),
			TangentZ: [3]float32(v.TangentZ),
		})
	}
	return wm
}

// DumpSections writes every encoded export section to dir, one file per
// section in push order. Debug aid for diffing scene exports between builds.
func (s *Snapshot) DumpSections(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, sec := range s.sections {
		payload, err := EncodeSection(sec)
		if err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("section_%03d_%s.bin", i, sec.Kind))
		if err := os.WriteFile(name, payload, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// exporter pushes a snapshot's sections one Step at a time, so a frame-loop
// tick never blocks on the full export.
type exporter struct {
	svc   Service
	jobID string
	snap  *Snapshot
	next  int
	seq   int
}

func (e *exporter) done() bool { return e.next >= len(e.snap.sections) }

func (e *exporter) percent() float64 {
	if len(e.snap.sections) == 0 {
		return 1
	}
	return float64(e.next) / float64(len(e.snap.sections))
}

// step encodes and pushes the next section. Returns true once the final
// section has been delivered.
func (e *exporter) step(ctx context.Context) (bool, error) {
	if e.done() {
		return true, nil
	}
	payload, err := EncodeSection(e.snap.sections[e.next])
	if err != nil {
		return false, err
	}
	e.next++
	msg := protocol.SceneChunkMsg{
		Type:    protocol.TypeSceneChunk,
		JobID:   e.jobID,
		Seq:     e.seq,
		Final:   e.done(),
		Payload: payload,
	}
	e.seq++
	if err := e.svc.PushChunk(ctx, msg); err != nil {
		return false, err
	}
	return e.done(), nil
}
