package compliance

import "sync"

// ContextWindows keeps the last N transcript snippets per call, used as
// grounding context when classifying the next snippet.
type ContextWindows struct {
	mu      sync.Mutex
	size    int
	windows map[string][]string
}

func NewContextWindows(size int) *ContextWindows {
	if size <= 0 {
		size = 3
	}
	return &ContextWindows{size: size, windows: make(map[string][]string)}
}

// Append records a snippet for the call, evicting the oldest past the bound.
func (w *ContextWindows) Append(callSid, snippet string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	window := append(w.windows[callSid], snippet)
	if len(window) > w.size {
		window = window[len(window)-w.size:]
	}
	w.windows[callSid] = window
}

// Snapshot returns the call's snippets oldest first.
func (w *ContextWindows) Snapshot(callSid string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	window := w.windows[callSid]
	out := make([]string, len(window))
	copy(out, window)
	return out
}

// Clear drops the call's window, typically when the call ends.
func (w *ContextWindows) Clear(callSid string) {
	w.mu.Lock()
	delete(w.windows, callSid)
	w.mu.Unlock()
}
