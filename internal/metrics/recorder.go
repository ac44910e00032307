package metrics

import (
	"errors"

	"macro-meal-engine/internal/shared"
)

// Recorders fans a meta record out to every non-nil recorder.
type Recorders []shared.MetaRecorder

// RecordMeta implements shared.MetaRecorder. All recorders are called; their
// errors are joined.
func (rs Recorders) RecordMeta(meta shared.AgentMeta) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.RecordMeta(meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
