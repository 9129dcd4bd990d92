package agency

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/model"
)

// Site is one station pull request.
type Site struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Adapter pulls the discharge record of a single site from one agency.
// Per-record problems are reported in the batch; an error means the site
// produced nothing usable.
type Adapter interface {
	Code() Code
	Fetch(ctx context.Context, site Site) (*model.Batch, error)
}

// Opener resolves http(s), ftp, file URLs and local paths.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	ReadAll(ctx context.Context, location string) ([]byte, error)
}

// Registry maps agency codes to their adapters.
type Registry struct {
	adapters map[Code]Adapter
	order    []Code // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Code]Adapter)}
}

// NewDefaultRegistry creates a registry with an adapter for every supported agency.
func NewDefaultRegistry(cfg *config.Config, op Opener) *Registry {
	r := NewRegistry()

	// Historical archives
	r.Register(NewGRDC(cfg.Agencies.GRDC, op))

	// Agency web services
	r.Register(NewUSGS(cfg.Agencies.USGS, op))
	r.Register(NewWSC(cfg.Agencies.WSC, op))
	r.Register(NewHydroShare(cfg.Agencies.HydroShare, cfg.Sword.Version, op))

	// Per-country exports
	for _, c := range []Code{DEFRA, ABOM, MLIT, Hidroweb, DGA, EAU, DWA, MEFCCWP} {
		r.Register(NewTabular(c, cfg.Agencies.Tabular[c.Key()], op))
	}

	return r
}

// Register adds an adapter, replacing any earlier one for the same code.
func (r *Registry) Register(a Adapter) {
	c := a.Code()
	if _, exists := r.adapters[c]; !exists {
		r.order = append(r.order, c)
	}
	r.adapters[c] = a
}

// Get returns the adapter for c.
func (r *Registry) Get(c Code) (Adapter, error) {
	a, ok := r.adapters[c]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownAgency, "no adapter registered for %s", c)
	}
	return a, nil
}

// Select returns the adapters for the named agencies, or all of them when names is empty.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		c, err := ParseCode(n)
		if err != nil {
			return nil, err
		}
		a, err := r.Get(c)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// All returns every adapter in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.adapters[c])
	}
	return out
}

// Codes returns the registered codes in registration order.
func (r *Registry) Codes() []Code {
	return append([]Code(nil), r.order...)
}
