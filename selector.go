package newsletter

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type BackendKind string

const (
	BackendSimple    BackendKind = "simple"
	BackendMailjet   BackendKind = "mailjet"
	BackendMailchimp BackendKind = "mailchimp"
)

// Dependencies are handed to every backend factory.
type Dependencies struct {
	Stores    Stores
	Renderer  Renderer
	Transport EmailTransport
	Options   []BackendOption
}

type BackendFactory func(deps Dependencies) (Backend, error)

// Selector maps a configured backend kind to the constructor building it.
type Selector struct {
	factories map[BackendKind]BackendFactory
}

// NewSelector returns a selector knowing the simple backend. Vendor backends
// are registered by their provider packages' callers.
func NewSelector() *Selector {
	s := &Selector{factories: map[BackendKind]BackendFactory{}}

	s.Register(BackendSimple, func(deps Dependencies) (Backend, error) {
		return NewSimpleBackend(deps.Stores, deps.Transport, deps.Renderer, deps.Options...)
	})

	return s
}

func (s *Selector) Register(kind BackendKind, factory BackendFactory) {
	s.factories[kind] = factory
}

func (s *Selector) Kinds() []BackendKind {
	kinds := make([]BackendKind, 0, len(s.factories))
	for kind := range s.factories {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// Resolve builds the backend registered for kind.
func (s *Selector) Resolve(kind BackendKind, deps Dependencies) (Backend, error) {
	factory, ok := s.factories[BackendKind(strings.ToLower(string(kind)))]
	if !ok {
		return nil, errors.Wrapf(UnknownBackendErr, "%q", kind)
	}

	backend, err := factory(deps)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s backend", kind)
	}

	return backend, nil
}
