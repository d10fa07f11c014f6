package baskets

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
)

const keyWaiting = "waiting_k"

func waitingBasket(reevaluate bool) func(*[]models.BasketConfig) {
	return withBasket(models.BasketConfig{
		BasketKey:        keyWaiting,
		Name:             "Waiting",
		IsActive:         true,
		DisplayOrder:     9,
		FailAfterDays:    intRef(30),
		OnFailBasketKey:  strRef(keyNew),
		OnFailReevaluate: reevaluate,
	})
}

func TestAgingDryRunThenLive(t *testing.T) {
	f := newFixture(t, waitingBasket(false))
	stale := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -32))
	fresh := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -10))

	dry, err := f.sweeper.ProcessAgingCustomers(f.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Processed)
	assert.Equal(t, 1, dry.Moved)
	require.Len(t, dry.Details, 1)
	assert.Equal(t, AgingDetail{CustomerID: stale.ID, From: keyWaiting, To: keyNew, DwellDays: 32, DryRun: true}, dry.Details[0])

	assert.Equal(t, keyWaiting, f.reload(stale.ID).CurrentBasketKey, "dry run must not mutate")
	assert.Empty(t, f.logs(stale.ID))

	live, err := f.sweeper.ProcessAgingCustomers(f.ctx, false)
	require.NoError(t, err)
	assert.NoError(t, live.Err())
	assert.Equal(t, 1, live.Moved)
	require.Len(t, live.Details, 1)
	assert.Equal(t, dry.Details[0].To, live.Details[0].To)

	got := f.reload(stale.ID)
	assert.Equal(t, keyNew, got.CurrentBasketKey)
	logs := f.logs(stale.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.TransitionAgingTimeout, logs[0].TransitionType)
	assert.Nil(t, logs[0].OrderID)
	assert.Nil(t, logs[0].TriggeredBy)

	assert.Equal(t, keyWaiting, f.reload(fresh.ID).CurrentBasketKey)
}

func TestAgingThresholdUsesCalendarDays(t *testing.T) {
	f := newFixture(t, waitingBasket(false))
	edge := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -30).Add(10*time.Hour))
	under := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -29))

	report, err := f.sweeper.ProcessAgingCustomers(f.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, keyNew, f.reload(edge.ID).CurrentBasketKey)
	assert.Equal(t, keyWaiting, f.reload(under.ID).CurrentBasketKey)
}

func TestAgingReevaluatesByRecency(t *testing.T) {
	f := newFixture(t, waitingBasket(true))
	old := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -40))
	lastOrder := f.now.AddDate(0, 0, -200)
	require.NoError(t, f.db.Model(&models.Customer{}).Where("id = ?", old.ID).Update("last_order_date", lastOrder).Error)

	recent := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -40))
	recentOrder := f.now.AddDate(0, 0, -20)
	require.NoError(t, f.db.Model(&models.Customer{}).Where("id = ?", recent.ID).Update("last_order_date", recentOrder).Error)

	report, err := f.sweeper.ProcessAgingCustomers(f.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Moved)
	assert.Equal(t, keyMid, f.reload(old.ID).CurrentBasketKey)
	assert.Equal(t, keyNew, f.reload(recent.ID).CurrentBasketKey, "recent customers fall back to the fail basket")
}

func TestAgingSkipsWithoutTarget(t *testing.T) {
	f := newFixture(t, withBasket(models.BasketConfig{
		BasketKey:     keyWaiting,
		Name:          "Waiting",
		IsActive:      true,
		FailAfterDays: intRef(5),
	}))
	c := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -40))

	report, err := f.sweeper.ProcessAgingCustomers(f.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Moved)
	assert.Empty(t, f.logs(c.ID))
}

func TestAgingCollectsPerCustomerFailures(t *testing.T) {
	f := newFixture(t, waitingBasket(false))
	good := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -31))
	bad := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -35))

	// Break the audit insert for one customer only.
	trigger := fmt.Sprintf(`CREATE TRIGGER reject_bad BEFORE INSERT ON basket_transition_log
WHEN NEW.customer_id = %d BEGIN SELECT RAISE(ABORT, 'audit rejected'); END;`, bad.ID)
	require.NoError(t, f.db.Exec(trigger).Error)

	report, err := f.sweeper.ProcessAgingCustomers(f.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Moved)
	require.Len(t, report.Errors, 1)
	assert.Error(t, report.Err())

	assert.Equal(t, keyNew, f.reload(good.ID).CurrentBasketKey)
	assert.Equal(t, keyWaiting, f.reload(bad.ID).CurrentBasketKey, "failed transition rolled back")
}

func TestAgingPagesPastCustomersThatStay(t *testing.T) {
	f := newFixture(t, withBasket(models.BasketConfig{
		BasketKey:        keyWaiting,
		Name:             "Waiting",
		IsActive:         true,
		DisplayOrder:     9,
		FailAfterDays:    intRef(30),
		OnFailReevaluate: true,
	}))
	f.sweeper.batchSize = 2

	recentOrder := f.now.AddDate(0, 0, -5)
	var stayers []models.Customer
	for _, days := range []int{90, 89, 88} {
		c := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -days))
		require.NoError(t, f.db.Model(&models.Customer{}).Where("id = ?", c.ID).Update("last_order_date", recentOrder).Error)
		stayers = append(stayers, c)
	}
	lapsed := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -40))
	oldOrder := f.now.AddDate(0, 0, -400)
	require.NoError(t, f.db.Model(&models.Customer{}).Where("id = ?", lapsed.ID).Update("last_order_date", oldOrder).Error)

	report, err := f.sweeper.ProcessAgingCustomers(f.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, 3, report.Skipped)

	assert.Equal(t, keyLong, f.reload(lapsed.ID).CurrentBasketKey)
	for _, c := range stayers {
		assert.Equal(t, keyWaiting, f.reload(c.ID).CurrentBasketKey)
	}
}

// movedAfterListing simulates a live sale landing between the sweep's read
// and its row lock.
type movedAfterListing struct {
	Repository
	db  func() error
	ran bool
}

func (m *movedAfterListing) ListAgingCustomers(ctx context.Context, basketKey string, enteredBefore time.Time, after *AgingCursor, limit int) ([]models.Customer, error) {
	customers, err := m.Repository.ListAgingCustomers(ctx, basketKey, enteredBefore, after, limit)
	if err != nil || m.ran {
		return customers, err
	}
	m.ran = true
	return customers, m.db()
}

func TestAgingSkipsCustomerMovedBeforeLock(t *testing.T) {
	f := newFixture(t, waitingBasket(false))
	c := f.customer(keyWaiting, nil, f.now.AddDate(0, 0, -45))

	f.sweeper.repo = &movedAfterListing{
		Repository: f.repo,
		db: func() error {
			return f.db.Model(&models.Customer{}).Where("id = ?", c.ID).Updates(map[string]any{
				"current_basket_key":  keyPersonal,
				"basket_entered_date": f.now,
			}).Error
		},
	}

	report, err := f.sweeper.ProcessAgingCustomers(f.ctx, false)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Moved)
	assert.Equal(t, 1, report.Skipped)

	got := f.reload(c.ID)
	assert.Equal(t, keyPersonal, got.CurrentBasketKey)
	assert.Empty(t, f.logs(c.ID))
}
