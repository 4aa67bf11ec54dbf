package tui

import "time"

const (
	// Timeouts and Intervals
	TickInterval = 500 * time.Millisecond

	// Input Dimensions
	InputWidth = 60

	// Layout Offsets and Padding
	HeaderWidthOffset      = 2
	ProgressBarWidthOffset = 8
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0
	PopupPaddingY          = 1
	PopupPaddingX          = 3

	// Default bar width before the first WindowSizeMsg
	DefaultProgressWidth = 40

	// Records shown in the history view
	HistoryLimit = 50
)

// Status texts shown on download cards
const (
	StatusQueued        = "Queued"
	StatusSizeUnknown   = "Downloading (size unknown)..."
	StatusCompleted     = "Completed"
	StatusCancelled     = "Cancelled"
	statusDownloading   = "Downloading: "
	statusDownloadedFmt = "Downloaded: "
	statusErrorPrefix   = "Error! "
)
