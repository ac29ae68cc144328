// Package format decodes exported financial files into ordered lists of
// decoded lines with named columns. Each handler owns its own column
// naming, numeric coercion and date parsing.
package format

import (
	"log/slog"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/segment"
)

// headerProbe is how many leading bytes a handler gets to recognize a file.
const headerProbe = 512

// Handler is one pluggable source format.
type Handler interface {
	// Name identifies the format.
	Name() string
	// CanHandle inspects the file's leading bytes for a capability match.
	CanHandle(header []byte) bool
	// Decode turns the whole file into decoded lines. A structurally
	// malformed file fails as a whole; partial decode is never returned.
	Decode(filename string, content []byte) ([]model.DecodedLine, error)
	// Segmenter returns the segmentation strategy for this format.
	Segmenter() segment.Strategy
	// NumericFields and TextFields declare which columns numeric and text
	// rule filters may target. They also feed the rule editor question.
	NumericFields() []string
	TextFields() []string
}

// Registry holds format handlers in priority order.
type Registry struct {
	handlers []Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns a registry with every built-in format, highest
// priority first.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewFixedWidth())
	r.Register(NewOFX())
	r.Register(NewNordnet())
	r.Register(NewCoinbase())
	r.Register(NewBankCSV())
	return r
}

// Register appends a handler at the lowest priority.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Find returns the first handler claiming the file's header.
func (r *Registry) Find(filename string, content []byte) (Handler, error) {
	header := content
	if len(header) > headerProbe {
		header = header[:headerProbe]
	}
	for _, h := range r.handlers {
		if h.CanHandle(header) {
			slog.Debug("Format handler matched", "file", filename, "format", h.Name())
			return h, nil
		}
	}
	return nil, common.InvalidFile(filename, common.ErrUnknownFormat.Error())
}

// Get returns a handler by its format name. A resumed run uses it to
// rebuild per-file strategies from the names recorded at decode time.
func (r *Registry) Get(name string) (Handler, bool) {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

// Handlers exposes the registered handlers in priority order.
func (r *Registry) Handlers() []Handler {
	return r.handlers
}
