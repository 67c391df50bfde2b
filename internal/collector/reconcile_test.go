package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grants-cli/internal/model"
	"github.com/sells-group/grants-cli/internal/store"
)

func findByExternalID(t *testing.T, st store.Store, id string) *model.Opportunity {
	t.Helper()
	var found *model.Opportunity
	require.NoError(t, st.Tx(context.Background(), func(w store.Writer) error {
		var err error
		found, err = w.FindByOpportunityID(context.Background(), id)
		return err
	}))
	return found
}

func TestReconcile_CreateThenUpdate(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, "")
	ctx := context.Background()

	opp := model.Opportunity{OpportunityID: "100", Title: "First", AwardCeiling: ptr(int64(1000))}
	ct, err := r.Reconcile(ctx, opp, &model.OpportunityContact{Email: ptr("a@agency.gov")})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeNew, ct)

	created := findByExternalID(t, st, "100")
	require.NotNil(t, created)

	opp.Title = "Second"
	opp.AwardCeiling = nil
	ct, err = r.Reconcile(ctx, opp, &model.OpportunityContact{Email: ptr("b@agency.gov")})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeModified, ct)

	n, err := st.CountOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetOpportunity(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)
	assert.Nil(t, got.AwardCeiling)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
	require.Len(t, got.Contacts, 1)
	assert.Equal(t, "b@agency.gov", *got.Contacts[0].Email)

	changes, err := st.RecentChanges(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	types := []model.ChangeType{changes[0].ChangeType, changes[1].ChangeType}
	assert.ElementsMatch(t, []model.ChangeType{model.ChangeNew, model.ChangeModified}, types)
	for _, c := range changes {
		assert.Equal(t, DefaultSource, c.Source)
		assert.Equal(t, "Second", c.Title)
	}
}

func TestReconcile_NoContactClearsExisting(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, "seed")
	ctx := context.Background()

	opp := model.Opportunity{OpportunityID: "7", Title: "Seven"}
	_, err := r.Reconcile(ctx, opp, &model.OpportunityContact{Text: ptr("Call us")})
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, opp, nil)
	require.NoError(t, err)

	got, err := st.GetOpportunity(ctx, findByExternalID(t, st, "7").ID)
	require.NoError(t, err)
	assert.Empty(t, got.Contacts)
}

func TestReconcile_FailureRollsBackWholeRecord(t *testing.T) {
	st := &faultyStore{Store: newTestStore(t), failOn: "13"}
	r := NewReconciler(st, "")
	ctx := context.Background()

	_, err := r.Reconcile(ctx, model.Opportunity{OpportunityID: "13", Title: "Unlucky"}, nil)
	require.Error(t, err)

	var recErr *RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "13", recErr.OpportunityID)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "record 13")
	// Not a storage-transient failure, so only one attempt.
	assert.Equal(t, 1, st.writes)

	assert.Nil(t, findByExternalID(t, st, "13"))
	changes, err := st.RecentChanges(ctx, time.Time{}, 10)
	require.NoError(t, err)
	assert.Empty(t, changes)
}
