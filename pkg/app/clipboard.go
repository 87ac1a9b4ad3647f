package app

import (
	"context"
	"sync"
)

// ShareData is what the native share sheet receives.
type ShareData struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// Clipboard abstracts clipboard writes and native sharing.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
	Share(ctx context.Context, data ShareData) error
}

// Prompter asks the user for an explicit yes/no.
type Prompter interface {
	Confirm(ctx context.Context, msg string) bool
}

// AutoConfirm answers yes; used where the request itself is the confirmation.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(context.Context, string) bool { return true }

// MemoryClipboard keeps the last copied text and share payload so a remote
// client can pick them up.
type MemoryClipboard struct {
	mu    sync.RWMutex
	text  string
	share *ShareData
}

func (m *MemoryClipboard) WriteText(_ context.Context, text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	return nil
}

func (m *MemoryClipboard) Share(_ context.Context, data ShareData) error {
	m.mu.Lock()
	m.share = &data
	m.mu.Unlock()
	return nil
}

// Text returns the last copied text.
func (m *MemoryClipboard) Text() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.text
}

// LastShare returns the last share payload, or nil.
func (m *MemoryClipboard) LastShare() *ShareData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.share == nil {
		return nil
	}
	d := *m.share
	return &d
}
