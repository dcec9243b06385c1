package lighting

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/protocol"
	"lightforge.dev/internal/scene"
)

// fakeSvc scripts the remote bake service for state-machine tests. Status
// pops queued messages; FetchResult fabricates a minimal result for any
// mapping GUID.
type fakeSvc struct {
	helloErr   error
	openErr    error
	kickoffErr error

	statuses []protocol.StatusMsg
	last     *protocol.StatusMsg

	chunks     int
	kicked     bool
	closeCalls int
	connClosed int
}

func (f *fakeSvc) Hello(ctx context.Context, clientName string) error { return f.helloErr }

func (f *fakeSvc) OpenJob(ctx context.Context, msg protocol.OpenJobMsg) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return "job-1", nil
}

func (f *fakeSvc) PushChunk(ctx context.Context, msg protocol.SceneChunkMsg) error {
	f.chunks++
	return nil
}

func (f *fakeSvc) Kickoff(ctx context.Context, jobID string) error {
	if f.kickoffErr != nil {
		return f.kickoffErr
	}
	f.kicked = true
	return nil
}

func (f *fakeSvc) Status(jobID string) (protocol.StatusMsg, bool) {
	if len(f.statuses) > 0 {
		st := f.statuses[0]
		f.statuses = f.statuses[1:]
		f.last = &st
		return st, true
	}
	if f.last != nil {
		st := *f.last
		st.Completed = nil
		return st, true
	}
	return protocol.StatusMsg{}, false
}

func (f *fakeSvc) FetchResult(ctx context.Context, jobID, mappingGUID string) ([]byte, error) {
	id, err := uuid.Parse(mappingGUID)
	if err != nil {
		return nil, err
	}
	return bakejob.EncodeResult(&scene.MappingResult{
		MappingGUID: id,
		Lightmap: scene.QuantizedLightmap{
			SizeX: 1, SizeY: 1,
			Scale:  [4]float32{1, 1, 1, 1},
			Texels: []byte{255, 255, 255, 255},
		},
	})
}

func (f *fakeSvc) CloseJob(ctx context.Context, jobID string) error {
	f.closeCalls++
	return nil
}

func (f *fakeSvc) Close() error {
	f.connClosed++
	return nil
}

func finishedOK() protocol.StatusMsg {
	return protocol.StatusMsg{Percent: 1, Finished: true, Succeeded: true}
}

// recordNotifier captures the event sequence for assertions.
type recordNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordNotifier) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordNotifier) BuildStarted()            { r.add("started") }
func (r *recordNotifier) Progress(float64, string) {}
func (r *recordNotifier) BuildDone(waiting bool)   { r.add(fmt.Sprintf("done(waiting=%v)", waiting)) }
func (r *recordNotifier) BuildFailed(string)       { r.add("failed") }
func (r *recordNotifier) BuildCancelled()          { r.add("cancelled") }

func (r *recordNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// gatedEnv lets tests open and close the auto-apply gate.
type gatedEnv struct {
	autoApply bool
	modal     bool
}

func (e *gatedEnv) AutoApplyEnabled() bool      { return e.autoApply }
func (e *gatedEnv) ModalUIOpen() bool           { return e.modal }
func (e *gatedEnv) SlowTaskRunning() bool       { return false }
func (e *gatedEnv) InteractiveEditActive() bool { return false }
func (e *gatedEnv) PlaySessionActive() bool     { return false }
func (e *gatedEnv) ProjectLoaded() bool         { return true }

func testLogger() *log.Logger { return log.New(os.Stdout, "[test] ", 0) }

// testWorld builds one persistent level: a two-surface BSP floor (adjacent,
// coplanar, same resolution, so one node group), two mesh components and a
// stationary directional light.
func testWorld() *scene.World {
	lvl := &scene.Level{Name: "persistent", Persistent: true, Visible: true}

	model := scene.NewModel()
	comp := model.AddComponent(true)
	brush := &scene.Actor{Name: "floor", IsBrush: true}
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{0, 0, 0}, {8, 0, 0}, {8, 8, 0}, {0, 8, 0}}, 2)
	model.AddQuadSurface(comp, brush, [4]mgl32.Vec3{{8, 0, 0}, {16, 0, 0}, {16, 8, 0}, {8, 8, 0}}, 2)
	lvl.Model = model

	crate := &scene.Actor{Name: "crate"}
	verts, idx := scene.MakeQuad(mgl32.Vec3{2, 2, 1}, mgl32.Vec3{4, 0, 0}, mgl32.Vec3{0, 4, 0})
	crate.Primitives = append(crate.Primitives, scene.NewMeshComponent("crate_top", verts, idx, 32))

	table := &scene.Actor{Name: "table"}
	verts, idx = scene.MakeQuad(mgl32.Vec3{10, 2, 1}, mgl32.Vec3{2, 0, 0}, mgl32.Vec3{0, 2, 0})
	table.Primitives = append(table.Primitives, scene.NewMeshComponent("table_top", verts, idx, 16))

	sun := &scene.Actor{Name: "sun", Lights: []*scene.Light{{
		Name:            "sun",
		Kind:            scene.LightDirectional,
		Mobility:        scene.MobilityStationary,
		Enabled:         true,
		StaticShadowing: true,
		StaticLighting:  true,
		Direction:       mgl32.Vec3{0, 0, -1},
		Color:           [3]float32{1, 1, 1},
		Intensity:       4,
		ShadowChannel:   -1,
	}}}

	lvl.Actors = []*scene.Actor{brush, crate, table, sun}
	return &scene.World{Levels: []*scene.Level{lvl}}
}

func newTestManager(svc *fakeSvc, env Environment, notify Notifier) *Manager {
	dial := func(ctx context.Context) (bakejob.Service, error) { return svc, nil }
	return NewManager(dial, env, notify, testLogger())
}

// tickUntil ticks the manager until cond holds or maxTicks is exhausted.
func tickUntil(ctx context.Context, m *Manager, maxTicks int, cond func() bool) bool {
	for i := 0; i < maxTicks; i++ {
		if cond() {
			return true
		}
		m.Tick(ctx)
	}
	return cond()
}
