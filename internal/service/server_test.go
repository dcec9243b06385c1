package service

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/protocol"
	"lightforge.dev/internal/scene"
)

func testLogger() *log.Logger { return log.New(os.Stdout, "[test] ", 0) }

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialClient(t *testing.T, url string) *bakejob.WSService {
	t.Helper()
	svc, err := bakejob.DialService(context.Background(), url, testLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func clientSnapshot(t *testing.T) (*bakejob.Snapshot, []*scene.Mapping, *scene.MeshComponent) {
	t.Helper()
	verts, indices := scene.MakeQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{4, 0, 0}, mgl32.Vec3{0, 4, 0})
	mc := scene.NewMeshComponent("quad", verts, indices, 8)
	light := &scene.Light{
		Name:            "lamp",
		GUID:            uuid.New(),
		Kind:            scene.LightPoint,
		Mobility:        scene.MobilityStatic,
		Enabled:         true,
		StaticLighting:  true,
		StaticShadowing: true,
		Position:        mgl32.Vec3{2, 2, 5},
		Radius:          50,
		Color:           [3]float32{1, 1, 1},
		Intensity:       3,
	}
	info := mc.LightingInfo([]*scene.Light{light})
	for _, m := range info.Mappings {
		m.Process = true
	}
	header := bakejob.SceneHeaderV1{Version: 1, JobGUID: uuid.NewString(), Quality: "high", LevelName: "persistent"}
	snap := bakejob.NewSnapshot(header, nil, []*scene.Light{light}, info.Meshes, info.Mappings)
	return snap, info.Mappings, mc
}

func TestEndToEndBake(t *testing.T) {
	_, url := startServer(t)
	svc := dialClient(t, url)
	ctx := context.Background()

	c := bakejob.NewClient(svc, testLogger())
	if err := c.Connect(ctx, "server-test"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	snap, mappings, mc := clientSnapshot(t)
	if err := c.OpenJob(ctx, snap, mappings); err != nil {
		t.Fatalf("open: %v", err)
	}
	for done := false; !done; {
		var err error
		done, _, err = c.ExportStep(ctx)
		if err != nil {
			t.Fatalf("export: %v", err)
		}
	}
	if err := c.Kickoff(ctx); err != nil {
		t.Fatalf("kickoff: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		finished, succeeded, _, err := c.Poll(ctx)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if finished {
			if !succeeded {
				t.Fatalf("remote bake failed")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bake never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := c.ImportAll(ctx); err != nil {
		t.Fatalf("import: %v", err)
	}
	if mc.Baked == nil {
		t.Fatalf("baked result never reached the component")
	}
	if len(mc.Baked.Lightmap.Texels) != 8*8*4 {
		t.Fatalf("texels = %d bytes, want %d", len(mc.Baked.Lightmap.Texels), 8*8*4)
	}
	if len(mc.Baked.ShadowMasks) != 1 {
		t.Fatalf("shadow masks = %d, want 1", len(mc.Baked.ShadowMasks))
	}
	if err := c.CloseJob(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKickoffBeforeExportRejected(t *testing.T) {
	_, url := startServer(t)
	svc := dialClient(t, url)
	ctx := context.Background()

	if err := svc.Hello(ctx, "server-test"); err != nil {
		t.Fatalf("hello: %v", err)
	}
	jobID, err := svc.OpenJob(ctx, protocol.OpenJobMsg{
		Type:            protocol.TypeOpenJob,
		ProtocolVersion: protocol.Version,
		JobGUID:         uuid.NewString(),
		Quality:         "high",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = svc.Kickoff(ctx, jobID)
	if err == nil || !strings.Contains(err.Error(), protocol.ErrJobState) {
		t.Fatalf("err = %v, want %s", err, protocol.ErrJobState)
	}
}

func TestSecondOpenJobRejected(t *testing.T) {
	_, url := startServer(t)
	svc := dialClient(t, url)
	ctx := context.Background()

	if err := svc.Hello(ctx, "server-test"); err != nil {
		t.Fatalf("hello: %v", err)
	}
	open := protocol.OpenJobMsg{
		Type:            protocol.TypeOpenJob,
		ProtocolVersion: protocol.Version,
		JobGUID:         uuid.NewString(),
		Quality:         "high",
	}
	if _, err := svc.OpenJob(ctx, open); err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err := svc.OpenJob(ctx, open)
	if err == nil || !strings.Contains(err.Error(), protocol.ErrJobBusy) {
		t.Fatalf("err = %v, want %s", err, protocol.ErrJobBusy)
	}
}

func TestFetchMissingResultRejected(t *testing.T) {
	_, url := startServer(t)
	svc := dialClient(t, url)
	ctx := context.Background()

	if err := svc.Hello(ctx, "server-test"); err != nil {
		t.Fatalf("hello: %v", err)
	}
	jobID, err := svc.OpenJob(ctx, protocol.OpenJobMsg{
		Type:            protocol.TypeOpenJob,
		ProtocolVersion: protocol.Version,
		JobGUID:         uuid.NewString(),
		Quality:         "high",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = svc.FetchResult(ctx, jobID, uuid.NewString())
	if err == nil || !strings.Contains(err.Error(), protocol.ErrResultMissing) {
		t.Fatalf("err = %v, want %s", err, protocol.ErrResultMissing)
	}
}
