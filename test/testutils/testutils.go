package testutils

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/plugin"
)

// CallLog records plugin invocations across several Recorders, in order.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *CallLog) add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the recorded invocations, such as "A.pre" or "B.route".
func (l *CallLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recorder is a plugin double that counts its invocations per phase.
type Recorder struct {
	Name string
	Log  *CallLog

	// RespondWith builds the routed response; defaults to a 200 naming the recorder.
	RespondWith func(req *exchange.Request) (*exchange.Response, error)
	// Transform is applied in post-processing; defaults to the identity.
	Transform func(resp *exchange.Response) (*exchange.Response, error)
	// PreErr is returned from PreProcess.
	PreErr error

	// Entered, when set, receives a value each time GetResponse starts.
	Entered chan struct{}
	// Gate, when set, blocks GetResponse until it is closed.
	Gate chan struct{}

	mu    sync.Mutex
	pre   int
	route int
	post  int
}

var _ plugin.Plugin = (*Recorder)(nil)

func (r *Recorder) PreProcess(req *exchange.Request) error {
	r.mu.Lock()
	r.pre++
	r.mu.Unlock()
	r.Log.add(r.Name + ".pre")
	return r.PreErr
}

func (r *Recorder) GetResponse(req *exchange.Request) (*exchange.Response, error) {
	r.mu.Lock()
	r.route++
	r.mu.Unlock()
	r.Log.add(r.Name + ".route")

	if r.Entered != nil {
		r.Entered <- struct{}{}
	}
	if r.Gate != nil {
		<-r.Gate
	}
	if r.RespondWith != nil {
		return r.RespondWith(req)
	}
	return exchange.NewHTMLResponse(http.StatusOK, r.Name), nil
}

func (r *Recorder) PostProcess(resp *exchange.Response) (*exchange.Response, error) {
	r.mu.Lock()
	r.post++
	r.mu.Unlock()
	r.Log.add(r.Name + ".post")

	if r.Transform != nil {
		return r.Transform(resp)
	}
	return resp, nil
}

// Counts returns the number of pre-processing, routing and post-processing invocations.
func (r *Recorder) Counts() (pre, route, post int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pre, r.route, r.post
}

// Total returns the number of invocations across all phases.
func (r *Recorder) Total() int {
	pre, route, post := r.Counts()
	return pre + route + post
}

// NewRegistration binds a plugin to a prefix for tests.
func NewRegistration(prefix string, p plugin.Plugin, pre, post bool) plugin.Registration {
	return plugin.Registration{
		Prefix:         prefix,
		Identifier:     prefix,
		Plugin:         p,
		PreProcessing:  pre,
		PostProcessing: post,
	}
}

// WriteDocumentRoot creates a temporary document root holding the given files.
func WriteDocumentRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return root
}
