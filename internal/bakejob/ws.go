package bakejob

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lightforge.dev/internal/protocol"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsCallTimeout  = 30 * time.Second
)

// WSService talks the job protocol to a bake server over one websocket
// connection. Requests are serialized; STATUS pushes are cached so Status
// never blocks the caller's tick loop.
type WSService struct {
	log  *log.Logger
	conn *websocket.Conn

	writeMu sync.Mutex
	resp    chan []byte

	statusMu sync.Mutex
	status   map[string]protocol.StatusMsg

	closeOnce sync.Once
	done      chan struct{}
}

// DialService connects to a bake server endpoint (ws://host:port/v1/bake).
func DialService(ctx context.Context, url string, logger *log.Logger) (*WSService, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	s := &WSService{
		log:    logger,
		conn:   conn,
		resp:   make(chan []byte, 8),
		status: make(map[string]protocol.StatusMsg),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *WSService) readLoop() {
	defer close(s.done)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type == protocol.TypeStatus {
			var st protocol.StatusMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			s.statusMu.Lock()
			prev := s.status[st.JobID]
			// Preserve completion announcements until the caller polls them.
			st.Completed = append(prev.Completed, st.Completed...)
			s.status[st.JobID] = st
			s.statusMu.Unlock()
			continue
		}
		select {
		case s.resp <- msg:
		default:
			s.log.Printf("dropping unexpected %s response", base.Type)
		}
	}
}

func (s *WSService) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// call writes a request and waits for the matching response type. Any ERROR
// response fails the call.
func (s *WSService) call(ctx context.Context, req any, wantType string, out any) error {
	if err := s.write(req); err != nil {
		return err
	}
	deadline := time.NewTimer(wsCallTimeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timeout waiting for %s", wantType)
		case <-s.done:
			return fmt.Errorf("connection closed waiting for %s", wantType)
		case msg := <-s.resp:
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeError:
				var em protocol.ErrorMsg
				_ = json.Unmarshal(msg, &em)
				return fmt.Errorf("service error %s: %s", em.Code, em.Detail)
			case wantType:
				if out == nil {
					return nil
				}
				return json.Unmarshal(msg, out)
			default:
				// Stale response from an earlier timed-out call.
				continue
			}
		}
	}
}

func (s *WSService) Hello(ctx context.Context, clientName string) error {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      clientName,
	}
	var welcome protocol.WelcomeMsg
	if err := s.call(ctx, hello, protocol.TypeWelcome, &welcome); err != nil {
		return err
	}
	if welcome.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol version mismatch: service %s, client %s", welcome.ProtocolVersion, protocol.Version)
	}
	return nil
}

func (s *WSService) OpenJob(ctx context.Context, msg protocol.OpenJobMsg) (string, error) {
	var opened protocol.JobOpenedMsg
	if err := s.call(ctx, msg, protocol.TypeJobOpened, &opened); err != nil {
		return "", err
	}
	if !opened.Accepted {
		return "", fmt.Errorf("job rejected: %s", opened.Reason)
	}
	return opened.JobID, nil
}

func (s *WSService) PushChunk(ctx context.Context, msg protocol.SceneChunkMsg) error {
	return s.write(msg)
}

func (s *WSService) Kickoff(ctx context.Context, jobID string) error {
	req := protocol.KickoffMsg{Type: protocol.TypeKickoff, JobID: jobID}
	var ack protocol.AckMsg
	return s.call(ctx, req, protocol.TypeAck, &ack)
}

func (s *WSService) Status(jobID string) (protocol.StatusMsg, bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st, ok := s.status[jobID]
	if ok {
		// Completion announcements are delivered once.
		cleared := st
		cleared.Completed = nil
		s.status[jobID] = cleared
	}
	return st, ok
}

func (s *WSService) FetchResult(ctx context.Context, jobID, mappingGUID string) ([]byte, error) {
	req := protocol.FetchResultMsg{Type: protocol.TypeFetchResult, JobID: jobID, MappingGUID: mappingGUID}
	var res protocol.MappingResultMsg
	if err := s.call(ctx, req, protocol.TypeMappingResult, &res); err != nil {
		return nil, err
	}
	if res.MappingGUID != mappingGUID {
		return nil, fmt.Errorf("result for wrong mapping: got %s", res.MappingGUID)
	}
	return res.Payload, nil
}

func (s *WSService) CloseJob(ctx context.Context, jobID string) error {
	req := protocol.CloseJobMsg{Type: protocol.TypeCloseJob, JobID: jobID}
	var closed protocol.JobClosedMsg
	return s.call(ctx, req, protocol.TypeJobClosed, &closed)
}

func (s *WSService) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
