package entity

type Stage string

const (
	StageUnpack    Stage = "unpack"
	StageTransform Stage = "transform"
)

// Job is one decoded unit of work for a stage.
type Job struct {
	Stage        Stage
	Key          string
	SourceBucket string
	SourcePath   string
	DestBucket   string
	DestPath     string
}

// StageResult reports what a successful stage execution produced.
type StageResult struct {
	Objects     int
	Skipped     int
	PublishedID string
}
