package jobs

import "time"

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// rank orders statuses along the pipeline. Terminal states share a rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusDownloading:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.rank() >= 0
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a move from s to next respects the
// monotonic ordering pending → downloading → processing → completed|failed.
// Failed is reachable from any non-terminal status; terminal states absorb.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() > s.rank()
}

// Metadata holds source metadata resolved by the download stage.
type Metadata map[string]any

// ProcessRequest is a caller's request to acquire and process a work.
type ProcessRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Year     *int   `json:"year,omitempty"`
	Language string `json:"language"`
}

// Job tracks a single work-processing request from submission to its
// terminal status.
type Job struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Year         *int      `json:"year,omitempty"`
	Language     string    `json:"language"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Metadata     Metadata  `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Paragraph is one source paragraph with its position in the work.
type Paragraph struct {
	Page      int    `json:"page"`
	Paragraph int    `json:"paragraph"`
	Text      string `json:"text"`
}

// Section aligns one translated chunk with its original text and the
// paragraphs it was built from.
type Section struct {
	Metadata    []Paragraph `json:"metadata"`
	Original    string      `json:"original"`
	Translation string      `json:"translation"`
}

// StructuredOutput is the sectioned rendering of a processed work. The
// envelope keeps the serialized form as {"sections": [...]}.
type StructuredOutput struct {
	Sections []Section `json:"sections"`
}

// ProcessedWork is the durable artifact of a completed job. Written
// exactly once, at the moment the pipeline reaches success.
type ProcessedWork struct {
	JobID            string           `json:"job_id"`
	Title            string           `json:"title"`
	Author           string           `json:"author"`
	Year             *int             `json:"year,omitempty"`
	Language         string           `json:"language"`
	Metadata         Metadata         `json:"metadata,omitempty"`
	OriginalText     string           `json:"original_text"`
	TranslatedText   string           `json:"translated_text"`
	StructuredOutput StructuredOutput `json:"structured_output"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CloneJob returns a deep copy so callers never share the stored value.
func CloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	if job.Year != nil {
		year := *job.Year
		tmp.Year = &year
	}
	if job.Metadata != nil {
		tmp.Metadata = make(Metadata, len(job.Metadata))
		for k, v := range job.Metadata {
			tmp.Metadata[k] = v
		}
	}
	return &tmp
}
