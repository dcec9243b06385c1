package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Job lifecycle.
	ErrJobNotFound = "E_JOB_NOT_FOUND"
	ErrJobBusy     = "E_JOB_BUSY"
	ErrJobState    = "E_JOB_STATE"

	// Scene payloads.
	ErrSceneDecode   = "E_SCENE_DECODE"
	ErrChunkOrder    = "E_CHUNK_ORDER"
	ErrResultMissing = "E_RESULT_MISSING"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrJobNotFound:     {},
	ErrJobBusy:         {},
	ErrJobState:        {},
	ErrSceneDecode:     {},
	ErrChunkOrder:      {},
	ErrResultMissing:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
