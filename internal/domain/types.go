package domain

import "time"

// JobStatus tracks each lifecycle stage for a single conversion job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusReady      JobStatus = "ready"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status is final for a job.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsPending reports whether a job is still waiting for conversion.
func (s JobStatus) IsPending() bool {
	return s == JobStatusQueued || s == JobStatusReady
}

// Settings contains user-selectable output preferences.
type Settings struct {
	OutputDirectory  string `json:"outputDirectory"`
	UseSubdirectory  bool   `json:"useSubdirectory"`
	SubdirectoryName string `json:"subdirectoryName"`
	FileNamePattern  string `json:"fileNamePattern"`
	ZoomedThumbnails bool   `json:"zoomedThumbnails"`
}

// Job is one requested conversion and its live state.
type Job struct {
	ID            string    `json:"id"`
	InputPath     string    `json:"inputPath"`
	OutputPath    string    `json:"outputPath"`
	Preset        Preset    `json:"preset"`
	Status        JobStatus `json:"status"`
	Progress      float64   `json:"progress"`
	Duration      *float64  `json:"duration,omitempty"`
	StatusMessage string    `json:"statusMessage,omitempty"`
	Error         string    `json:"error,omitempty"`
	ThumbnailPath string    `json:"thumbnailPath,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DurationSeconds returns the probed duration or zero when unknown.
func (j Job) DurationSeconds() float64 {
	if j.Duration == nil {
		return 0
	}
	return *j.Duration
}

// HistoryEntry records one completed conversion.
type HistoryEntry struct {
	ID             string    `json:"id"`
	InputPath      string    `json:"inputPath"`
	OutputPath     string    `json:"outputPath"`
	PresetName     string    `json:"presetName"`
	CompletedAt    time.Time `json:"completedAt"`
	FileSizeBefore int64     `json:"fileSizeBefore"`
	FileSizeAfter  int64     `json:"fileSizeAfter"`
	Duration       float64   `json:"duration"`
}

// EncoderVersion describes the bundled or discovered encoder build.
type EncoderVersion struct {
	Version string `json:"version"`
	Date    string `json:"date,omitempty"`
	Updated string `json:"updated,omitempty"`
}
