package bakejob

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"lightforge.dev/internal/protocol"
	"lightforge.dev/internal/scene"
)

// fakeService scripts the remote side of a job without a network.
type fakeService struct {
	helloErr   error
	openErr    error
	kickoffErr error

	chunks     []protocol.SceneChunkMsg
	status     *protocol.StatusMsg
	results    map[string][]byte
	fetches    int
	closeCalls int
	connClosed int
}

func (f *fakeService) Hello(ctx context.Context, clientName string) error { return f.helloErr }

func (f *fakeService) OpenJob(ctx context.Context, msg protocol.OpenJobMsg) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return "job-1", nil
}

func (f *fakeService) PushChunk(ctx context.Context, msg protocol.SceneChunkMsg) error {
	f.chunks = append(f.chunks, msg)
	return nil
}

func (f *fakeService) Kickoff(ctx context.Context, jobID string) error { return f.kickoffErr }

func (f *fakeService) Status(jobID string) (protocol.StatusMsg, bool) {
	if f.status == nil {
		return protocol.StatusMsg{}, false
	}
	st := *f.status
	f.status.Completed = nil
	return st, true
}

func (f *fakeService) FetchResult(ctx context.Context, jobID, mappingGUID string) ([]byte, error) {
	f.fetches++
	b, ok := f.results[mappingGUID]
	if !ok {
		return nil, errors.New("missing result")
	}
	return b, nil
}

func (f *fakeService) CloseJob(ctx context.Context, jobID string) error {
	f.closeCalls++
	return nil
}

func (f *fakeService) Close() error {
	f.connClosed++
	return nil
}

func testLogger() *log.Logger { return log.New(os.Stdout, "[test] ", 0) }

func quadMapping(size int) (*scene.Mesh, *scene.Mapping, *scene.MeshComponent) {
	verts, indices := scene.MakeQuad(
		mgl32.Vec3{0, 0, 0}, mgl32.Vec3{4, 0, 0}, mgl32.Vec3{0, 4, 0})
	mc := scene.NewMeshComponent("quad", verts, indices, size)
	info := mc.LightingInfo(nil)
	return info.Meshes[0], info.Mappings[0], mc
}

func testSnapshot(mappings ...*scene.Mapping) *Snapshot {
	var meshes []*scene.Mesh
	for _, m := range mappings {
		m.Process = true
		meshes = append(meshes, m.Mesh)
	}
	header := SceneHeaderV1{Version: 1, JobGUID: uuid.NewString(), Quality: "high"}
	return NewSnapshot(header, nil, nil, meshes, mappings)
}

func TestConnectWrapsConnectionError(t *testing.T) {
	svc := &fakeService{helloErr: errors.New("refused")}
	c := NewClient(svc, testLogger())
	err := c.Connect(context.Background(), "test")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
}

func TestOpenJobWrapsJobStartError(t *testing.T) {
	_, mp, _ := quadMapping(8)
	svc := &fakeService{openErr: errors.New("rejected")}
	c := NewClient(svc, testLogger())
	err := c.OpenJob(context.Background(), testSnapshot(mp), []*scene.Mapping{mp})
	if !errors.Is(err, ErrJobStart) {
		t.Fatalf("err = %v, want ErrJobStart", err)
	}
	if c.JobOpened() {
		t.Fatalf("job must not be marked opened after a failed open")
	}
}

func TestExportStepsToCompletion(t *testing.T) {
	_, mp, _ := quadMapping(8)
	svc := &fakeService{}
	c := NewClient(svc, testLogger())
	if err := c.OpenJob(context.Background(), testSnapshot(mp), []*scene.Mapping{mp}); err != nil {
		t.Fatalf("open: %v", err)
	}

	var done bool
	var pct float64
	for i := 0; i < 100 && !done; i++ {
		var err error
		done, pct, err = c.ExportStep(context.Background())
		if err != nil {
			t.Fatalf("export step: %v", err)
		}
	}
	if !done || pct != 1 {
		t.Fatalf("export did not finish: done=%v pct=%v", done, pct)
	}
	if len(svc.chunks) == 0 {
		t.Fatalf("no chunks pushed")
	}
	for i, ch := range svc.chunks {
		if ch.Seq != i {
			t.Fatalf("chunk %d has seq %d", i, ch.Seq)
		}
		if ch.Final != (i == len(svc.chunks)-1) {
			t.Fatalf("final flag wrong on chunk %d", i)
		}
	}
}

func TestCloseJobExactlyOnce(t *testing.T) {
	_, mp, _ := quadMapping(8)
	svc := &fakeService{}
	c := NewClient(svc, testLogger())
	if err := c.OpenJob(context.Background(), testSnapshot(mp), []*scene.Mapping{mp}); err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.CloseJob(context.Background()); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if svc.closeCalls != 1 {
		t.Fatalf("closeCalls = %d, want 1", svc.closeCalls)
	}
	if svc.connClosed != 1 {
		t.Fatalf("connClosed = %d, want 1", svc.connClosed)
	}
}

func TestCloseJobNoOpWhenNeverOpened(t *testing.T) {
	svc := &fakeService{}
	c := NewClient(svc, testLogger())
	if err := c.CloseJob(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if svc.closeCalls != 0 {
		t.Fatalf("closeCalls = %d, want 0", svc.closeCalls)
	}
}

func TestImportAllAppliesResults(t *testing.T) {
	_, mp, mc := quadMapping(8)
	res := &scene.MappingResult{
		MappingGUID: mp.GUID,
		Lightmap:    scene.QuantizedLightmap{SizeX: 8, SizeY: 8, Texels: make([]byte, 8*8*4)},
	}
	payload, err := EncodeResult(res)
	if err != nil {
		t.Fatalf("encode result: %v", err)
	}
	svc := &fakeService{results: map[string][]byte{mp.GUID.String(): payload}}
	c := NewClient(svc, testLogger())
	if err := c.OpenJob(context.Background(), testSnapshot(mp), []*scene.Mapping{mp}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.ImportAll(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if mc.Baked == nil {
		t.Fatalf("result was not applied to the component")
	}
	if c.ImportedCount() != 1 {
		t.Fatalf("imported = %d, want 1", c.ImportedCount())
	}

	// Re-import is a no-op.
	if err := c.ImportAll(context.Background()); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if c.ImportedCount() != 1 {
		t.Fatalf("imported after re-import = %d, want 1", c.ImportedCount())
	}
}

func TestPollReportsLatestStatus(t *testing.T) {
	_, mp, mc := quadMapping(8)
	svc := &fakeService{status: &protocol.StatusMsg{
		Percent:   0.5,
		Completed: []string{mp.GUID.String()},
	}}
	c := NewClient(svc, testLogger())
	if err := c.OpenJob(context.Background(), testSnapshot(mp), []*scene.Mapping{mp}); err != nil {
		t.Fatalf("open: %v", err)
	}
	finished, _, pct, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if finished || pct != 0.5 {
		t.Fatalf("poll = finished=%v pct=%v", finished, pct)
	}
	// Deferred mode: completion announcements never trigger a fetch.
	if svc.fetches != 0 || mc.Baked != nil {
		t.Fatalf("deferred poll imported a result")
	}
}

func TestImmediateImportAppliesDuringPoll(t *testing.T) {
	_, mp, mc := quadMapping(8)
	res := &scene.MappingResult{
		MappingGUID: mp.GUID,
		Lightmap:    scene.QuantizedLightmap{SizeX: 8, SizeY: 8, Texels: make([]byte, 8*8*4)},
	}
	payload, err := EncodeResult(res)
	if err != nil {
		t.Fatalf("encode result: %v", err)
	}
	svc := &fakeService{
		status: &protocol.StatusMsg{
			Percent:   0.5,
			Completed: []string{mp.GUID.String()},
		},
		results: map[string][]byte{mp.GUID.String(): payload},
	}
	c := NewClient(svc, testLogger())
	c.ImmediateImport = true
	if err := c.OpenJob(context.Background(), testSnapshot(mp), []*scene.Mapping{mp}); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, _, _, err := c.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if mc.Baked == nil {
		t.Fatalf("immediate import did not apply the result during poll")
	}
	if c.ImportedCount() != 1 {
		t.Fatalf("imported = %d, want 1", c.ImportedCount())
	}

	// The bulk import at finalization must not fetch it again.
	if err := c.ImportAll(context.Background()); err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	if svc.fetches != 1 {
		t.Fatalf("fetches = %d, want 1", svc.fetches)
	}
	if c.ImportedCount() != 1 {
		t.Fatalf("imported after bulk = %d, want 1", c.ImportedCount())
	}
}
