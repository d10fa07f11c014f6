package baskets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
)

func TestPendingAdminOrderRoutesUnownedCustomerToPool(t *testing.T) {
	f := newFixture(t)
	c := f.customer(keyNew, nil, f.now.AddDate(0, 0, -3))
	f.order("Z", c.ID, userAdmin, enums.OrderStatusPending, f.now)

	res, err := f.router.HandleOrderStatusChange(f.ctx, "Z", enums.OrderStatusPending, userAdmin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, keyNew, res.FromBasket)
	assert.Equal(t, keyDistPool, res.ToBasket)
	assert.Equal(t, enums.TransitionPendingAdminUnowned, res.TransitionType)

	logs := f.logs(c.ID)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].FromBasketKey)
	assert.Equal(t, keyNew, *logs[0].FromBasketKey)
	assert.Equal(t, keyDistPool, logs[0].ToBasketKey)
	require.NotNil(t, logs[0].OrderID)
	assert.Equal(t, "Z", *logs[0].OrderID)
	require.NotNil(t, logs[0].TriggeredBy)
	assert.Equal(t, userAdmin, *logs[0].TriggeredBy)

	got := f.reload(c.ID)
	assert.Equal(t, keyDistPool, got.CurrentBasketKey)
	require.NotNil(t, got.BasketEnteredDate)
	assert.True(t, got.BasketEnteredDate.Equal(f.now))
	assert.Equal(t, int64(1), f.outboxCount(), "one outbox event per transition")
}

func TestRedeliveredEventIsNoOp(t *testing.T) {
	f := newFixture(t)
	c := f.customer(keyNew, nil, f.now.AddDate(0, 0, -3))
	f.order("Z", c.ID, userAdmin, enums.OrderStatusPending, f.now)

	_, err := f.router.HandleOrderStatusChange(f.ctx, "Z", enums.OrderStatusPending, userAdmin)
	require.NoError(t, err)

	res, err := f.router.HandleOrderStatusChange(f.ctx, "Z", enums.OrderStatusPending, userAdmin)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, f.logs(c.ID), 1)
	assert.Equal(t, int64(1), f.outboxCount())
}

func TestTelesalePendingOrderWaitsForPicking(t *testing.T) {
	f := newFixture(t)
	c := f.customer(keyNew, nil, f.now)
	f.order("T", c.ID, userTelesale, enums.OrderStatusPending, f.now)

	res, err := f.router.HandleOrderStatusChange(f.ctx, "T", enums.OrderStatusPending, userTelesale)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, f.logs(c.ID))
}

func TestIgnoredStatusesAndUnknownOrders(t *testing.T) {
	f := newFixture(t)

	res, err := f.router.HandleOrderStatusChange(f.ctx, "missing", enums.OrderStatusDelivered, userAdmin)
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = f.router.HandleOrderStatusChange(f.ctx, "missing", enums.OrderStatusPicking, userAdmin)
	assert.Nil(t, res)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	f.order("orphan", 999, userAdmin, enums.OrderStatusPicking, f.now)
	res, err = f.router.HandleOrderStatusChange(f.ctx, "orphan", enums.OrderStatusPicking, userAdmin)
	assert.Nil(t, res)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, int64(0), f.outboxCount())
}

func TestRaceGuardSkipsOlderOrder(t *testing.T) {
	f := newFixture(t)
	c := f.customer(keyNew, nil, f.now.AddDate(0, 0, -10))
	f.order("A", c.ID, userAdmin, enums.OrderStatusPending, f.now.AddDate(0, 0, -2))
	f.order("B", c.ID, userAdmin, enums.OrderStatusPending, f.now.AddDate(0, 0, -1))

	f.setStatus("B", enums.OrderStatusPicking)
	res, err := f.router.HandleOrderStatusChange(f.ctx, "B", enums.OrderStatusPicking, userAdmin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)

	f.setStatus("A", enums.OrderStatusPicking)
	res, err = f.router.HandleOrderStatusChange(f.ctx, "A", enums.OrderStatusPicking, userAdmin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Skipped)
	assert.Equal(t, "newer_order_advanced", res.Reason)

	logs := f.logs(c.ID)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].OrderID)
	assert.Equal(t, "B", *logs[0].OrderID)
}

func TestUpsellSoldViaTelesaleItem(t *testing.T) {
	f := newFixture(t)
	owner := userTelesale
	c := f.customer(keyUpsell, &owner, f.now.AddDate(0, 0, -1))
	f.order("Z", c.ID, userAdmin, enums.OrderStatusPending, f.now)
	f.item("Z", userAdmin)
	f.item("Z", owner)

	f.setStatus("Z", enums.OrderStatusPicking)
	res, err := f.router.HandleOrderStatusChange(f.ctx, "Z", enums.OrderStatusPicking, userAdmin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, keyPersonal, res.ToBasket)
	assert.Equal(t, enums.TransitionSold, res.TransitionType)
	require.NotNil(t, res.AssignedToNew)
	assert.Equal(t, owner, *res.AssignedToNew, "owner is kept")

	got := f.reload(c.ID)
	assert.Equal(t, keyPersonal, got.CurrentBasketKey)
	assert.Equal(t, 0, got.DistributionCount)
}

func TestUpsellInvolvementOutsideLookbackIsNotSold(t *testing.T) {
	f := newFixture(t)
	owner := userTelesale
	c := f.customer(keyUpsell, &owner, f.now.AddDate(0, 0, -1))
	f.order("old", c.ID, userTelesale, enums.OrderStatusPending, f.now.AddDate(0, 0, -8))
	f.order("Z", c.ID, userAdmin, enums.OrderStatusPicking, f.now)

	res, err := f.router.HandleOrderStatusChange(f.ctx, "Z", enums.OrderStatusPicking, userAdmin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, keyNew, res.ToBasket)
	assert.Equal(t, enums.TransitionNotSold, res.TransitionType)
}

func TestUpsellReturnsToPersonalPreservingEnteredDate(t *testing.T) {
	f := newFixture(t)
	owner := userTelesale
	entered := f.now.AddDate(0, 0, -20)
	c := f.customer(keyPersonal, &owner, entered)

	f.order("P", c.ID, userAdmin, enums.OrderStatusPending, f.now.AddDate(0, 0, -1))
	res, err := f.router.HandleOrderStatusChange(f.ctx, "P", enums.OrderStatusPending, userAdmin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, keyUpsell, res.ToBasket)
	assert.Equal(t, enums.TransitionPendingAdminOwned, res.TransitionType)

	f.setStatus("P", enums.OrderStatusPicking)
	f.now = f.now.Add(2 * time.Hour)
	res, err = f.router.HandleOrderStatusChange(f.ctx, "P", enums.OrderStatusPicking, userAdmin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, keyPersonal, res.ToBasket)
	assert.Equal(t, enums.TransitionUpsellReturnPersonal, res.TransitionType)

	got := f.reload(c.ID)
	require.NotNil(t, got.BasketEnteredDate)
	assert.False(t, got.BasketEnteredDate.Equal(f.now), "entered date must not be reset")
}

func TestOwnerTelesaleInPersonalOnlyRefreshesDate(t *testing.T) {
	f := newFixture(t)
	owner := userTelesale
	c := f.customer(keyPersonal, &owner, f.now.AddDate(0, 0, -15))
	f.order("R", c.ID, userTelesale, enums.OrderStatusPicking, f.now)

	res, err := f.router.HandleOrderStatusChange(f.ctx, "R", enums.OrderStatusPicking, userTelesale)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, f.logs(c.ID), "refresh writes no log row")

	got := f.reload(c.ID)
	assert.Equal(t, keyPersonal, got.CurrentBasketKey)
	require.NotNil(t, got.BasketEnteredDate)
	assert.True(t, got.BasketEnteredDate.Equal(f.now))
}

func TestTelesaleClaimsUnownedCustomer(t *testing.T) {
	f := newFixture(t)
	c := f.customer(keyNew, nil, f.now.AddDate(0, 0, -4))
	f.order("C", c.ID, userTelesale, enums.OrderStatusPicking, f.now)

	res, err := f.router.HandleOrderStatusChange(f.ctx, "C", enums.OrderStatusPicking, userTelesale)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, enums.TransitionPickingTelesaleFromDist, res.TransitionType)
	assert.Nil(t, res.AssignedToOld)
	require.NotNil(t, res.AssignedToNew)
	assert.Equal(t, userTelesale, *res.AssignedToNew)

	got := f.reload(c.ID)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, userTelesale, *got.AssignedTo)
	assert.Equal(t, keyPersonal, got.CurrentBasketKey)
	assert.Len(t, f.logs(c.ID), 1, "owner and basket change in one transition")
}

func TestAuditChainLinksEveryTransition(t *testing.T) {
	f := newFixture(t)
	c := f.customer(keyNew, nil, f.now.AddDate(0, 0, -30))

	f.order("o1", c.ID, userAdmin, enums.OrderStatusPending, f.now.AddDate(0, 0, -5))
	_, err := f.router.HandleOrderStatusChange(f.ctx, "o1", enums.OrderStatusPending, userAdmin)
	require.NoError(t, err)

	f.setStatus("o1", enums.OrderStatusPicking)
	_, err = f.router.HandleOrderStatusChange(f.ctx, "o1", enums.OrderStatusPicking, userAdmin)
	require.NoError(t, err)

	f.order("o2", c.ID, userTelesale, enums.OrderStatusPicking, f.now.AddDate(0, 0, -1))
	_, err = f.router.HandleOrderStatusChange(f.ctx, "o2", enums.OrderStatusPicking, userTelesale)
	require.NoError(t, err)

	f.order("o3", c.ID, userAdmin, enums.OrderStatusPending, f.now)
	_, err = f.router.HandleOrderStatusChange(f.ctx, "o3", enums.OrderStatusPending, userAdmin)
	require.NoError(t, err)

	logs := f.logs(c.ID)
	require.Len(t, logs, 4)
	expected := []string{keyDistPool, keyPoolGrad, keyPersonal, keyUpsell}
	prev := keyNew
	for i, entry := range logs {
		require.NotNil(t, entry.FromBasketKey)
		assert.Equal(t, prev, *entry.FromBasketKey, "entry %d", i)
		assert.Equal(t, expected[i], entry.ToBasketKey, "entry %d", i)
		prev = entry.ToBasketKey
	}
	assert.Equal(t, prev, f.reload(c.ID).CurrentBasketKey)
	assert.Equal(t, int64(4), f.outboxCount())
}
