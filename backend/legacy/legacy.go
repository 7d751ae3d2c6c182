// Package legacy keeps the retired video-scaler backend name alive.
// The hardware it drove is gone; the stub answers the full contract so
// configurations that still name it degrade cleanly instead of failing
// lookup.
package legacy

import (
	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"
)

func init() {
	backend.Register(backend.BackendLegacyScaler, func() backend.Backend {
		return &Scaler{}
	})
}

// Scaler is the disabled historical scaler backend. Supported is always
// false and Init always returns ErrUnsupported.
type Scaler struct {
	status backend.Status
}

var _ backend.Backend = (*Scaler)(nil)

func (s *Scaler) Name() string           { return backend.BackendLegacyScaler }
func (s *Scaler) Supported() bool        { return false }
func (s *Scaler) Status() backend.Status { return s.status }

func (s *Scaler) Init(width, height int) error {
	s.status = backend.StatusFailed
	return backend.ErrUnsupported
}

func (s *Scaler) Apply(snap *keystone.Snapshot, src *keystone.Frame) (*keystone.Frame, error) {
	return nil, backend.ErrNotInitialized
}

func (s *Scaler) Update(snap *keystone.Snapshot) error {
	return backend.ErrNotInitialized
}

func (s *Scaler) Cleanup() {
	s.status = backend.StatusCleanedUp
}
