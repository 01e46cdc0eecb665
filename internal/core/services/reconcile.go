package services

import (
	"context"
	"errors"
	"log"

	"github.com/melih/aetherhost/internal/core/domain"
)

// ReconcileReport counts what one reconcile pass changed.
type ReconcileReport struct {
	Checked int
	Updated int
	Removed int
}

// Reconcile refreshes the stored status of every recorded container from the
// runtime. Containers the runtime no longer knows are marked removed.
func (s *ComputeService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	recs, err := s.records.AllContainers(ctx)
	if err != nil {
		return report, err
	}
	live, err := s.runtime.ListContainers(ctx)
	if err != nil {
		return report, err
	}
	state := make(map[string]string, len(live))
	for _, c := range live {
		state[c.ID] = c.State
	}

	for _, rec := range recs {
		report.Checked++
		current, ok := state[rec.ID]
		if !ok {
			current = domain.StatusRemoved
		}
		if current == rec.Status {
			continue
		}
		if err := s.records.UpdateStatus(ctx, rec.ID, current); err != nil {
			log.Printf("[reconcile] update %s: %v", rec.ID, err)
			continue
		}
		if current == domain.StatusRemoved {
			report.Removed++
		} else {
			report.Updated++
		}
	}
	return report, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrContainerNotFound)
}
