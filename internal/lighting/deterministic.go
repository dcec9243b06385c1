package lighting

import (
	"sort"

	"github.com/google/uuid"

	"lightforge.dev/internal/bakejob"
)

// assignDeterministicIDs orders the rebuilt mappings and stamps every
// underlying mesh with a dense reproducibility GUID, so an unchanged scene
// bakes to byte-identical output across runs.
//
// With sorting enabled, mappings are ordered by descending texel count
// (largest first, so the slowest work starts earliest) with gather order
// breaking ties. With sorting off the GUIDs were already stamped in gather
// order.
func (s *System) assignDeterministicIDs() {
	if s.opts.SortMappings {
		sort.SliceStable(s.mappings, func(i, j int) bool {
			return s.mappings[i].TexelCount() > s.mappings[j].TexelCount()
		})
		for _, m := range s.mappings {
			if !m.Process {
				continue
			}
			m.Mesh.GUID = bakejob.DeterministicGUID(s.deterministicIndex)
			s.deterministicIndex++
		}
	}
	s.verifyDeterministicIDs()
}

// verifyDeterministicIDs checks that every rebuilt mapping landed in
// [0, count). Violations are logged and the build continues with best-effort
// IDs; a bad index costs reproducibility, not correctness.
func (s *System) verifyDeterministicIDs() {
	count := s.deterministicIndex
	for _, m := range s.mappings {
		if !m.Process {
			continue
		}
		idx := deterministicIndexOf(m.Mesh.GUID)
		if idx < 0 || idx >= count {
			s.log.Printf("mapping %q has deterministic index %d outside [0,%d)", m.Desc, idx, count)
			s.results.Warningf("mapping %q was assigned an out-of-range deterministic index, repeated bakes may differ", m.Desc)
		}
	}
}

// deterministicIndexOf inverts DeterministicGUID. Returns -1 for GUIDs that
// were never stamped (any of the high 12 bytes nonzero).
func deterministicIndexOf(g uuid.UUID) int {
	for _, b := range g[:12] {
		if b != 0 {
			return -1
		}
	}
	return int(g[12])<<24 | int(g[13])<<16 | int(g[14])<<8 | int(g[15])
}
