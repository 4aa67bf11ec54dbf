package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is a progress notification emitted by a transfer task.
// The set of implementations is closed; consumers type-switch on them.
type Event interface {
	ID() string
	header() Header
}

// Header identifies the transfer an event belongs to
type Header struct {
	DownloadID string
	URL        string
}

// ID returns the transfer's download ID
func (h Header) ID() string { return h.DownloadID }

func (h Header) header() Header { return h }

// StartedMsg is sent once before streaming when the size is unknown.
// Only BytesMsg updates follow it.
type StartedMsg struct {
	Header
	Filename string
}

// PercentMsg reports progress when the total size is known
type PercentMsg struct {
	Header
	Percent int // 0..100, strictly increasing within a task
}

// BytesMsg reports progress when the total size is unknown
type BytesMsg struct {
	Header
	Bytes uint64 // Total bytes written so far
}

// CompleteMsg signals that the transfer finished successfully
type CompleteMsg struct {
	Header
	Filename string
	DestPath string
	Total    uint64
	MimeType string // Sniffed from the first chunk; empty when unrecognised
}

// CancelledMsg signals that the transfer was cancelled by its owner
type CancelledMsg struct {
	Header
	Downloaded uint64
}

// FailedMsg signals that an I/O error ended the transfer
type FailedMsg struct {
	Header
	Downloaded uint64
	Err        error
}

// IsTerminal reports whether e ends its task's event stream.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case CompleteMsg, CancelledMsg, FailedMsg:
		return true
	default:
		return false
	}
}

// Type names used in the JSON encoding
const (
	TypeStarted   = "started"
	TypePercent   = "percent"
	TypeBytes     = "bytes"
	TypeComplete  = "complete"
	TypeCancelled = "cancelled"
	TypeFailed    = "failed"
)

// TypeOf returns the wire name of e's variant.
func TypeOf(e Event) string {
	switch e.(type) {
	case StartedMsg:
		return TypeStarted
	case PercentMsg:
		return TypePercent
	case BytesMsg:
		return TypeBytes
	case CompleteMsg:
		return TypeComplete
	case CancelledMsg:
		return TypeCancelled
	case FailedMsg:
		return TypeFailed
	default:
		return ""
	}
}

// wire is the flat JSON form shared by all variants
type wire struct {
	Type       string `json:"type"`
	DownloadID string `json:"download_id"`
	URL        string `json:"url"`
	Filename   string `json:"filename,omitempty"`
	DestPath   string `json:"dest_path,omitempty"`
	Percent    *int   `json:"percent,omitempty"`
	Bytes      uint64 `json:"bytes,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Err        string `json:"error,omitempty"`
}

// Marshal encodes e as a single JSON object with a "type" discriminator.
func Marshal(e Event) ([]byte, error) {
	if e == nil {
		return nil, errors.New("nil event")
	}
	h := e.header()
	w := wire{Type: TypeOf(e), DownloadID: h.DownloadID, URL: h.URL}

	switch m := e.(type) {
	case StartedMsg:
		w.Filename = m.Filename
	case PercentMsg:
		p := m.Percent
		w.Percent = &p
	case BytesMsg:
		w.Bytes = m.Bytes
	case CompleteMsg:
		w.Filename, w.DestPath, w.Bytes, w.MimeType = m.Filename, m.DestPath, m.Total, m.MimeType
	case CancelledMsg:
		w.Bytes = m.Downloaded
	case FailedMsg:
		w.Bytes = m.Downloaded
		if m.Err != nil {
			w.Err = m.Err.Error()
		}
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
	return json.Marshal(w)
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	h := Header{DownloadID: w.DownloadID, URL: w.URL}

	switch w.Type {
	case TypeStarted:
		return StartedMsg{Header: h, Filename: w.Filename}, nil
	case TypePercent:
		if w.Percent == nil {
			return nil, errors.New("percent event without percent")
		}
		return PercentMsg{Header: h, Percent: *w.Percent}, nil
	case TypeBytes:
		return BytesMsg{Header: h, Bytes: w.Bytes}, nil
	case TypeComplete:
		return CompleteMsg{Header: h, Filename: w.Filename, DestPath: w.DestPath, Total: w.Bytes, MimeType: w.MimeType}, nil
	case TypeCancelled:
		return CancelledMsg{Header: h, Downloaded: w.Bytes}, nil
	case TypeFailed:
		m := FailedMsg{Header: h, Downloaded: w.Bytes}
		if w.Err != "" {
			m.Err = errors.New(w.Err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", w.Type)
	}
}
