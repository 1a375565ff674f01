package domain

import "time"

// BatchState tracks whether a conversion batch is currently running.
type BatchState string

const (
	BatchStateIdle       BatchState = "idle"
	BatchStateConverting BatchState = "converting"
)

// SizeAxis selects which frame dimension is pinned to the target pixel size.
type SizeAxis string

const (
	SizeAxisNone   SizeAxis = "none"
	SizeAxisWidth  SizeAxis = "width"
	SizeAxisHeight SizeAxis = "height"
)

// ConversionSettings is applied identically to every file of one batch.
type ConversionSettings struct {
	TargetFPS       float64  `json:"targetFps" yaml:"targetFps"`
	SizeAxis        SizeAxis `json:"sizeAxis" yaml:"sizeAxis"`
	TargetPixelSize int      `json:"targetPixelSize,omitempty" yaml:"targetPixelSize,omitempty"`
	Lossless        bool     `json:"lossless" yaml:"lossless"`
	Quality         int      `json:"quality" yaml:"quality"`
	Compression     int      `json:"compression" yaml:"compression"`
}

// FileOutcomeStatus is the terminal state of one file inside a batch.
type FileOutcomeStatus string

const (
	FileOutcomeConverted FileOutcomeStatus = "converted"
	FileOutcomeFailed    FileOutcomeStatus = "failed"
	FileOutcomeSkipped   FileOutcomeStatus = "skipped"
)

// FileOutcome records what happened to one source file.
type FileOutcome struct {
	Source       string            `json:"source"`
	Output       string            `json:"output,omitempty"`
	Status       FileOutcomeStatus `json:"status"`
	ErrorKind    string            `json:"errorKind,omitempty"`
	Error        string            `json:"error,omitempty"`
	Frames       int               `json:"frames,omitempty"`
	RemoteURL    string            `json:"remoteUrl,omitempty"`
	PublishError string            `json:"publishError,omitempty"`
}

// ConversionStatus is the process-wide progress snapshot read by observers.
type ConversionStatus struct {
	BatchID        string        `json:"batchId,omitempty"`
	State          BatchState    `json:"state"`
	IsConverting   bool          `json:"isConverting"`
	// Progress is the percentage of files processed so far, counting
	// converted, failed and skipped files alike; CompletedFiles counts
	// only successful conversions.
	Progress       int           `json:"progress"`
	CurrentFile    string        `json:"currentFile"`
	TotalFiles     int           `json:"totalFiles"`
	CompletedFiles int           `json:"completedFiles"`
	Message        string        `json:"message"`
	OutputDir      string        `json:"outputDir,omitempty"`
	Outcomes       []FileOutcome `json:"outcomes,omitempty"`
	StartedAt      time.Time     `json:"startedAt,omitempty"`
	FinishedAt     time.Time     `json:"finishedAt,omitempty"`
}

// Clone returns a copy that shares no mutable state with s.
func (s ConversionStatus) Clone() ConversionStatus {
	if s.Outcomes != nil {
		s.Outcomes = append([]FileOutcome(nil), s.Outcomes...)
	}
	return s
}

// MemorySettings tunes the advisory memory-pressure relief during accumulation.
type MemorySettings struct {
	HighWaterPercent float64 `json:"highWaterPercent" yaml:"highWaterPercent"`
	CheckEvery       int     `json:"checkEvery" yaml:"checkEvery"`
}

// PublishSettings configures optional upload of finished artifacts.
type PublishSettings struct {
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// Enabled reports whether artifacts should be uploaded.
func (p PublishSettings) Enabled() bool {
	return p.Bucket != ""
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir   string             `json:"outputDir" yaml:"outputDir"`
	FFmpegPath  string             `json:"ffmpegPath" yaml:"ffmpegPath"`
	FFprobePath string             `json:"ffprobePath" yaml:"ffprobePath"`
	Defaults    ConversionSettings `json:"defaults" yaml:"defaults"`
	Memory      MemorySettings     `json:"memory" yaml:"memory"`
	Publish     PublishSettings    `json:"publish" yaml:"publish"`
}

// OutputFile describes one artifact found in the output directory.
type OutputFile struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
