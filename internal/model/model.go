package model

// Job is one leased transcription job. The backend owns the job record;
// the worker only holds a transient lease reference until it calls
// complete or fail.
type Job struct {
	ID           string `json:"id"`
	MediaFileID  string `json:"mediaFileId"`
	Model        string `json:"model,omitempty"`
	LanguageHint string `json:"languageHint,omitempty"`
}

// MediaFile is the metadata half of a media item; raw bytes are fetched
// separately via the download endpoint.
type MediaFile struct {
	ID               string   `json:"id"`
	OriginalFilename string   `json:"originalFilename"`
	DurationSec      *float64 `json:"durationSec,omitempty"`
}

// Segment is a timed piece of transcript text. Idx is 0-based and
// contiguous within a job; ParticipantID is filled later by the
// diarization pass.
type Segment struct {
	ID            string `json:"id,omitempty"`
	Idx           int    `json:"idx"`
	StartMs       int64  `json:"startMs"`
	EndMs         int64  `json:"endMs"`
	Text          string `json:"text"`
	ParticipantID string `json:"participantId,omitempty"`
}

// Participant is one speaker. CanonicalKey is the diarization engine's raw
// label and stays stable across runs; Name is human-facing and may be
// renamed by users without breaking the join.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CanonicalKey string `json:"canonicalKey"`
}

// ProgressUpdate is a best-effort status push for a running job. Nil
// fields are omitted; an update with all fields absent is a no-op
// server-side.
type ProgressUpdate struct {
	ProcessedMs *int64 `json:"processedMs,omitempty"`
	TotalMs     *int64 `json:"totalMs,omitempty"`
	EtaSeconds  *int64 `json:"etaSeconds,omitempty"`
}
