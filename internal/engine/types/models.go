package types

// DownloadRequest describes one transfer to perform
type DownloadRequest struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`      // Name of the file created in OutputDir
	OutputDir    string `json:"output_dir"`    // Empty means the working directory
	ExpectedSize int64  `json:"expected_size"` // UnknownSize when not probed
}

// SizeKnown reports whether the request carries a usable size hint
func (r DownloadRequest) SizeKnown() bool {
	return r.ExpectedSize >= 0
}

// Transfer statuses as stored in history
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// TransferRecord represents a finished transfer in the history store
type TransferRecord struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	DestPath   string `json:"dest_path"`
	TotalSize  int64  `json:"total_size"` // UnknownSize when never determined
	Downloaded int64  `json:"downloaded"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	StartedAt  int64  `json:"started_at"`  // Unix timestamp
	FinishedAt int64  `json:"finished_at"` // Unix timestamp
}

// DownloadStatus is a snapshot of an in-flight transfer
type DownloadStatus struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	TotalSize  int64  `json:"total_size"`
	Downloaded int64  `json:"downloaded"`
	Status     string `json:"status"`
}
