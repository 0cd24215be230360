package models

// IngestStatus is the externally visible state of an ingestion session.
type IngestStatus string

const (
	IngestStatusIdle     IngestStatus = "idle"
	IngestStatusFetching IngestStatus = "fetching"
	IngestStatusEnded    IngestStatus = "ended"
	IngestStatusError    IngestStatus = "error"
)

// IngestState is a snapshot of the ingestion cursor.
type IngestState struct {
	Offset    int64        `json:"offset"`
	InFlight  bool         `json:"inFlight"`
	Ended     bool         `json:"ended"`
	LastError string       `json:"lastError,omitempty"`
	Status    IngestStatus `json:"status"`
}

// Loading reports whether a fetch cycle is in progress.
func (s IngestState) Loading() bool {
	return s.InFlight
}

// IngestStats counts what a session has processed so far.
type IngestStats struct {
	Chunks        int   `json:"chunks"`
	BytesFetched  int64 `json:"bytesFetched"`
	Records       int   `json:"records"`
	ParseFailures int   `json:"parseFailures"`
	MissingTime   int   `json:"missingTime"`
}

// ParseFailure describes a line that could not be parsed into a record.
type ParseFailure struct {
	Offset  int64  `json:"offset"` // offset of the chunk the line completed in
	Line    int    `json:"line"`   // index of the line within that chunk's batch
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// Snapshot is the read-only view exposed to presentation layers.
type Snapshot struct {
	ID          string       `json:"id,omitempty"`
	Resource    string       `json:"resource"`
	ChunkSize   int64        `json:"chunkSize"`
	State       IngestState  `json:"state"`
	Stats       IngestStats  `json:"stats"`
	RecordCount int          `json:"recordCount"`
	Buckets     []HourBucket `json:"buckets"`
	UnknownTime int          `json:"unknownTime"`
}
