package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/protocol"
)

// Read deadline is generous: a client legitimately goes quiet while it polls
// a long-running bake.
const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 10 * time.Minute
	writeTimeout     = 5 * time.Second
)

type jobState int

const (
	jobOpen jobState = iota
	jobExported
	jobRunning
	jobDone
	jobClosed
)

// Job is one bake job owned by a client session. The bake goroutine and the
// session reader both touch it, hence the mutex.
type Job struct {
	mu sync.Mutex

	ID    string
	state jobState

	scene   bakejob.SceneV1
	nextSeq int

	results      map[string][]byte
	mappingsDone int
	succeeded    bool
}

// Server is the bake service's websocket endpoint. One connection is one
// client session; a session runs one job at a time.
type Server struct {
	log   *log.Logger
	index *JobIndex // nil disables the durable job index
	name  string

	upgrader websocket.Upgrader

	// BakeDelay slows each mapping's bake, for exercising the asynchronous
	// polling path in tests and demos.
	BakeDelay time.Duration
}

func NewServer(index *JobIndex, logger *log.Logger) *Server {
	return &Server{
		log:   logger,
		index: index,
		name:  "lightforge-bakeserver",
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out, ok := s.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. One job at a time per session.
		var job *Job
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.sendErr(ctx, out, protocol.ErrProtoBadRequest, "undecodable message")
				continue
			}
			job = s.dispatch(ctx, out, job, base.Type, msg)
		}

		if job != nil {
			job.mu.Lock()
			open := job.state != jobClosed
			job.mu.Unlock()
			if open {
				s.log.Printf("session dropped with job %s still open", job.ID)
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (chan []byte, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, false
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ServiceName:     s.name,
		SessionID:       uuid.NewString(),
	}
	b, err := json.Marshal(welcome)
	if err != nil {
		return nil, false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return nil, false
	}
	s.log.Printf("session %s: client %q connected", welcome.SessionID, hello.ClientName)
	return make(chan []byte, 64), true
}

// dispatch handles one message and returns the session's current job.
func (s *Server) dispatch(ctx context.Context, out chan []byte, job *Job, typ string, msg []byte) *Job {
	switch typ {
	case protocol.TypeOpenJob:
		var open protocol.OpenJobMsg
		if err := json.Unmarshal(msg, &open); err != nil {
			s.sendErr(ctx, out, protocol.ErrProtoBadRequest, "bad OPEN_JOB")
			return job
		}
		if job != nil && !job.isClosed() {
			s.sendErr(ctx, out, protocol.ErrJobBusy, "session already has an open job")
			return job
		}
		j := &Job{ID: "job-" + uuid.NewString()[:8], results: make(map[string][]byte)}
		if s.index != nil {
			s.index.JobOpened(j.ID, open.JobGUID, open.Quality, open.MeshCount, open.MappingCount)
		}
		s.push(ctx, out, protocol.JobOpenedMsg{Type: protocol.TypeJobOpened, JobID: j.ID, Accepted: true})
		s.log.Printf("job %s opened: quality=%s meshes=%d mappings=%d", j.ID, open.Quality, open.MeshCount, open.MappingCount)
		return j

	case protocol.TypeSceneChunk:
		var chunk protocol.SceneChunkMsg
		if err := json.Unmarshal(msg, &chunk); err != nil {
			s.sendErr(ctx, out, protocol.ErrProtoBadRequest, "bad SCENE_CHUNK")
			return job
		}
		if job == nil || chunk.JobID != job.ID {
			s.sendErr(ctx, out, protocol.ErrJobNotFound, chunk.JobID)
			return job
		}
		job.mu.Lock()
		defer job.mu.Unlock()
		if job.state != jobOpen {
			s.sendErr(ctx, out, protocol.ErrJobState, "scene data after export finished")
			return job
		}
		if chunk.Seq != job.nextSeq {
			s.sendErr(ctx, out, protocol.ErrChunkOrder, fmt.Sprintf("got seq %d want %d", chunk.Seq, job.nextSeq))
			return job
		}
		sec, err := bakejob.DecodeSection(chunk.Payload)
		if err != nil {
			s.sendErr(ctx, out, protocol.ErrSceneDecode, err.Error())
			return job
		}
		job.scene.Merge(sec)
		job.nextSeq++
		if chunk.Final {
			job.state = jobExported
		}
		return job

	case protocol.TypeKickoff:
		var kick protocol.KickoffMsg
		if err := json.Unmarshal(msg, &kick); err != nil {
			s.sendErr(ctx, out, protocol.ErrProtoBadRequest, "bad KICKOFF")
			return job
		}
		if job == nil || kick.JobID != job.ID {
			s.sendErr(ctx, out, protocol.ErrJobNotFound, kick.JobID)
			return job
		}
		job.mu.Lock()
		if job.state != jobExported {
			job.mu.Unlock()
			s.sendErr(ctx, out, protocol.ErrJobState, "kickoff before export finished")
			return job
		}
		job.state = jobRunning
		job.mu.Unlock()
		s.push(ctx, out, protocol.AckMsg{Type: protocol.TypeAck, JobID: job.ID, Of: protocol.TypeKickoff})
		go s.runBake(ctx, job, out)
		return job

	case protocol.TypeFetchResult:
		var fetch protocol.FetchResultMsg
		if err := json.Unmarshal(msg, &fetch); err != nil {
			s.sendErr(ctx, out, protocol.ErrProtoBadRequest, "bad FETCH_RESULT")
			return job
		}
		if job == nil || fetch.JobID != job.ID {
			s.sendErr(ctx, out, protocol.ErrJobNotFound, fetch.JobID)
			return job
		}
		job.mu.Lock()
		payload, ok := job.results[fetch.MappingGUID]
		job.mu.Unlock()
		if !ok {
			s.sendErr(ctx, out, protocol.ErrResultMissing, fetch.MappingGUID)
			return job
		}
		s.push(ctx, out, protocol.MappingResultMsg{
			Type:        protocol.TypeMappingResult,
			JobID:       job.ID,
			MappingGUID: fetch.MappingGUID,
			Payload:     payload,
		})
		return job

	case protocol.TypeCloseJob:
		var cls protocol.CloseJobMsg
		if err := json.Unmarshal(msg, &cls); err != nil {
			s.sendErr(ctx, out, protocol.ErrProtoBadRequest, "bad CLOSE_JOB")
			return job
		}
		if job == nil || cls.JobID != job.ID {
			s.sendErr(ctx, out, protocol.ErrJobNotFound, cls.JobID)
			return job
		}
		job.mu.Lock()
		job.state = jobClosed
		job.results = make(map[string][]byte)
		job.mu.Unlock()
		if s.index != nil {
			s.index.JobClosed(job.ID)
		}
		s.push(ctx, out, protocol.JobClosedMsg{Type: protocol.TypeJobClosed, JobID: job.ID})
		s.log.Printf("job %s closed", job.ID)
		return job

	default:
		s.sendErr(ctx, out, protocol.ErrProtoBadRequest, "unexpected "+typ)
		return job
	}
}

// runBake computes every processed mapping and streams progress. Aborts
// quietly when the session dies.
func (s *Server) runBake(ctx context.Context, j *Job, out chan []byte) {
	j.mu.Lock()
	sc := j.scene
	j.mu.Unlock()

	var process []bakejob.MappingV1
	for _, mp := range sc.Mappings {
		if mp.Process {
			process = append(process, mp)
		}
	}

	for i, mp := range process {
		if s.BakeDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.BakeDelay):
			}
		}
		res := BakeMapping(&sc, mp)
		payload, err := bakejob.EncodeResult(res)
		if err != nil {
			s.log.Printf("job %s: encoding result: %v", j.ID, err)
			s.finishBake(ctx, j, out, i, false)
			return
		}
		guid := uuid.UUID(mp.GUID).String()
		j.mu.Lock()
		if j.state != jobRunning {
			j.mu.Unlock()
			return
		}
		j.results[guid] = payload
		j.mappingsDone = i + 1
		j.mu.Unlock()
		if s.index != nil {
			s.index.MappingBaked(j.ID, guid, mp.SizeX*mp.SizeY)
		}
		s.push(ctx, out, protocol.StatusMsg{
			Type:         protocol.TypeStatus,
			JobID:        j.ID,
			Percent:      float64(i+1) / float64(len(process)),
			MappingsDone: i + 1,
			Completed:    []string{guid},
		})
	}
	s.finishBake(ctx, j, out, len(process), true)
}

func (s *Server) finishBake(ctx context.Context, j *Job, out chan []byte, done int, succeeded bool) {
	j.mu.Lock()
	if j.state == jobRunning {
		j.state = jobDone
		j.succeeded = succeeded
	}
	j.mu.Unlock()
	if s.index != nil {
		s.index.JobFinished(j.ID, succeeded)
	}
	s.push(ctx, out, protocol.StatusMsg{
		Type:         protocol.TypeStatus,
		JobID:        j.ID,
		Percent:      1,
		Finished:     true,
		Succeeded:    succeeded,
		MappingsDone: done,
	})
	s.log.Printf("job %s finished: succeeded=%v mappings=%d", j.ID, succeeded, done)
}

func (j *Job) isClosed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == jobClosed
}

func (s *Server) push(ctx context.Context, out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case <-ctx.Done():
	case out <- b:
	}
}

func (s *Server) sendErr(ctx context.Context, out chan []byte, code, detail string) {
	s.push(ctx, out, protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Detail: detail})
}
