package collector

import (
	"context"

	"github.com/sells-group/grants-cli/internal/model"
	"github.com/sells-group/grants-cli/internal/resilience"
	"github.com/sells-group/grants-cli/internal/store"
)

// Default change-log notes for extract-driven writes.
const (
	DefaultSource         = "xml_extract"
	DefaultCreatedDetails = "Created from daily XML extract"
	DefaultUpdatedDetails = "Updated from daily XML extract"
)

// Reconciler creates or updates one opportunity per call, appends its change
// entry, and replaces its contacts, all in a single transaction.
//
// Writes are last-writer-wins: nothing guards against a concurrent run
// updating the same opportunity between the lookup and the update.
type Reconciler struct {
	store store.Store
	retry resilience.Policy

	Source         string
	CreatedDetails string
	UpdatedDetails string
}

// NewReconciler returns a Reconciler that labels its change entries with source.
func NewReconciler(st store.Store, source string) *Reconciler {
	if source == "" {
		source = DefaultSource
	}
	return &Reconciler{
		store:          st,
		retry:          resilience.StoragePolicy(),
		Source:         source,
		CreatedDetails: DefaultCreatedDetails,
		UpdatedDetails: DefaultUpdatedDetails,
	}
}

// Reconcile persists opp and reports whether it was new or modified. Failures
// are returned as *RecordError. A transient storage failure reruns the whole
// transaction before giving up.
func (r *Reconciler) Reconcile(ctx context.Context, opp model.Opportunity, contact *model.OpportunityContact) (model.ChangeType, error) {
	var changeType model.ChangeType

	err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		o := opp
		return r.store.Tx(ctx, func(w store.Writer) error {
			ct, err := r.apply(ctx, w, &o, contact)
			changeType = ct
			return err
		})
	})
	if err != nil {
		return "", &RecordError{OpportunityID: opp.OpportunityID, Err: err}
	}
	return changeType, nil
}

func (r *Reconciler) apply(ctx context.Context, w store.Writer, opp *model.Opportunity, contact *model.OpportunityContact) (model.ChangeType, error) {
	existing, err := w.FindByOpportunityID(ctx, opp.OpportunityID)
	if err != nil {
		return "", err
	}
	if opp.Status == "" {
		opp.Status = model.StatusActive
	}

	change := &model.OpportunityChange{Source: r.Source}
	if existing == nil {
		opp.ID = ""
		if err := w.InsertOpportunity(ctx, opp); err != nil {
			return "", err
		}
		change.ChangeType = model.ChangeNew
		change.Details = optional(r.CreatedDetails)
	} else {
		opp.ID = existing.ID
		opp.CreatedAt = existing.CreatedAt
		if err := w.UpdateOpportunity(ctx, opp); err != nil {
			return "", err
		}
		change.ChangeType = model.ChangeModified
		change.Details = optional(r.UpdatedDetails)
	}

	change.OpportunityID = opp.ID
	if err := w.InsertChange(ctx, change); err != nil {
		return "", err
	}

	if err := w.DeleteContacts(ctx, opp.ID); err != nil {
		return "", err
	}
	if contact != nil {
		c := *contact
		c.ID = ""
		c.OpportunityID = opp.ID
		if err := w.InsertContact(ctx, &c); err != nil {
			return "", err
		}
	}

	return change.ChangeType, nil
}
