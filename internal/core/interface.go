package core

import (
	"context"

	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/types"
)

// DownloadService defines the interface for interacting with the download engine.
// The TUI and the headless CLI both drive transfers through it.
type DownloadService interface {
	// Add registers url and starts its transfer in the background.
	// It returns the new download ID.
	Add(url string) (string, error)

	// Cancel requests cancellation of an in-flight download.
	Cancel(id string) bool

	// List returns the status of all in-flight downloads.
	List() []types.DownloadStatus

	// History returns finished downloads, newest first.
	History(limit int) ([]types.TransferRecord, error)

	// Events returns the channel every transfer's events are forwarded to.
	Events() <-chan events.Event

	// Wait blocks until every added download has finished or ctx ends.
	Wait(ctx context.Context) error

	// Shutdown cancels in-flight downloads and waits for them to stop.
	Shutdown()
}
