package protocol

// HelloMsg opens a session with the bake service.
type HelloMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ClientName      string       `json:"client_name"`
	Capabilities    Capabilities `json:"capabilities"`
}

type Capabilities struct {
	// MaxChunkBytes caps the size of a single SCENE_CHUNK payload.
	MaxChunkBytes int `json:"max_chunk_bytes,omitempty"`
}

type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ServiceName     string `json:"service_name"`
	SessionID       string `json:"session_id"`
}

// OpenJobMsg announces a build job before any scene data is pushed.
type OpenJobMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	JobGUID         string `json:"job_guid"`
	Quality         string `json:"quality"`
	MeshCount       int    `json:"mesh_count"`
	MappingCount    int    `json:"mapping_count"`
	VisibilityOnly  bool   `json:"visibility_only,omitempty"`
}

type JobOpenedMsg struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// SceneChunkMsg carries one compressed slice of the exported scene.
// Chunks are ordered by Seq; Final marks the last one.
type SceneChunkMsg struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Seq     int    `json:"seq"`
	Final   bool   `json:"final,omitempty"`
	Payload []byte `json:"payload"`
}

type KickoffMsg struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

// StatusMsg is pushed by the service while a job runs and once on completion.
// Completed lists mapping GUIDs finished since the previous status.
type StatusMsg struct {
	Type         string   `json:"type"`
	JobID        string   `json:"job_id"`
	Percent      float64  `json:"percent"`
	Finished     bool     `json:"finished"`
	Succeeded    bool     `json:"succeeded"`
	MappingsDone int      `json:"mappings_done"`
	Completed    []string `json:"completed,omitempty"`
	Message      string   `json:"message,omitempty"`
}

type FetchResultMsg struct {
	Type        string `json:"type"`
	JobID       string `json:"job_id"`
	MappingGUID string `json:"mapping_guid"`
}

// MappingResultMsg returns one baked mapping as an opaque blob.
type MappingResultMsg struct {
	Type        string `json:"type"`
	JobID       string `json:"job_id"`
	MappingGUID string `json:"mapping_guid"`
	Payload     []byte `json:"payload"`
}

type CloseJobMsg struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

type JobClosedMsg struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

// AckMsg confirms a request that has no richer response (KICKOFF).
type AckMsg struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	Of    string `json:"of"`
}

type ErrorMsg struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
