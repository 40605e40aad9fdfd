// Package report emits structured status lines for the spawning collaborator.
//
// The collaborator that owns the preview session reads these lines from the
// proxy's stdout to correlate the instance with its session. This is the only
// channel back to the collaborator — message passing, no shared state.
package report

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Reporter writes one JSON object per line to w. Safe for concurrent use.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a Reporter writing to w.
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

type event struct {
	Event  string `json:"event"`
	Origin string `json:"origin,omitempty"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
	Time   string `json:"time"`
}

func (r *Reporter) emit(e event) {
	e.Time = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.w.Write(append(b, '\n'))
}

// OriginPinned reports the upstream origin resolved at startup.
func (r *Reporter) OriginPinned(origin string) {
	r.emit(event{Event: "origin-pinned", Origin: origin})
}

// Listening reports the externally reachable preview URL once the listener
// is bound.
func (r *Reporter) Listening(url string) {
	r.emit(event{Event: "listening", URL: url})
}

// ListenerError reports a listener-level failure. The proxy does not retry;
// the collaborator decides whether to respawn the instance.
func (r *Reporter) ListenerError(err error) {
	r.emit(event{Event: "listener-error", Error: err.Error()})
}

// Shutdown acknowledges receipt of a termination signal.
func (r *Reporter) Shutdown() {
	r.emit(event{Event: "shutdown"})
}
