package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello         = "HELLO"
	TypeWelcome       = "WELCOME"
	TypeOpenJob       = "OPEN_JOB"
	TypeJobOpened     = "JOB_OPENED"
	TypeSceneChunk    = "SCENE_CHUNK"
	TypeKickoff       = "KICKOFF"
	TypeStatus        = "STATUS"
	TypeFetchResult   = "FETCH_RESULT"
	TypeMappingResult = "MAPPING_RESULT"
	TypeCloseJob      = "CLOSE_JOB"
	TypeJobClosed     = "JOB_CLOSED"
	TypeAck           = "ACK"
	TypeError         = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
