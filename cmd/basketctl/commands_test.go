package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/basket-engine/internal/baskets"
	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
)

func TestArgumentErrorsStopBeforeConnecting(t *testing.T) {
	cases := [][]string{
		{"release"},
		{"release", "1", "2"},
		{"distribute", "upsell_51"},
		{"reclaim", "7"},
		{"dlq", "requeue"},
		{"dlq", "requeue", "not-a-uuid"},
		{"dlq", "list", "extra"},
		{"history"},
		{"history", "abc"},
		{"history", "0"},
	}
	for _, args := range cases {
		a := &app{}
		root := newRootCommand(a)
		root.SetArgs(args)
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		assert.Error(t, root.Execute(), "%v", args)
		assert.Nil(t, a.eng, "%v must fail before the engine is built", args)
		assert.Nil(t, a.outbox, "%v must fail before the database is opened", args)
	}
}

func TestWriteBatchFlagsPartialFailure(t *testing.T) {
	var out bytes.Buffer
	err := writeBatch(&out, baskets.BatchReport{
		Moved:  1,
		Errors: []error{fmt.Errorf("customer 9: locked")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errPartial))
	assert.Contains(t, out.String(), `"customer 9: locked"`)

	out.Reset()
	require.NoError(t, writeBatch(&out, baskets.BatchReport{Skipped: 2}))
	assert.Contains(t, out.String(), `"skipped": 2`)
}

func TestWriteCatalogListsRoles(t *testing.T) {
	var configs []models.BasketConfig
	for i, role := range enums.RequiredBasketRoles {
		r := role
		configs = append(configs, models.BasketConfig{
			BasketKey:    string(role) + "_key",
			Name:         string(role),
			Role:         &r,
			IsActive:     true,
			DisplayOrder: i,
		})
	}
	catalog, err := baskets.NewCatalog(configs)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeCatalog(&out, catalog))
	first := enums.RequiredBasketRoles[0]
	assert.Contains(t, out.String(), string(first)+"_key")
	assert.Contains(t, out.String(), string(first))
}

func TestParseID(t *testing.T) {
	id, err := parseID("customer id", "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-3", "abc"} {
		_, err := parseID("customer id", raw)
		assert.Error(t, err, raw)
	}
	assert.Nil(t, optionalID(0))
	assert.Equal(t, int64(5), *optionalID(5))
}

func TestWriteParkedShowsReasonAndError(t *testing.T) {
	msg := "max publish attempts reached: unavailable"
	id := uuid.New()
	var out bytes.Buffer
	require.NoError(t, writeParked(&out, []models.OutboxDLQ{{
		EventID:       id,
		EventType:     enums.EventCustomerBasketTransitioned,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   "42",
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  9,
		FailedAt:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}}))
	text := out.String()
	assert.Contains(t, text, id.String())
	assert.Contains(t, text, "customer:42")
	assert.Contains(t, text, "max_attempts")
	assert.Contains(t, text, "2026-05-01T12:00:00Z")
	assert.Contains(t, text, msg)
}

func TestWriteHistoryShowsOwnershipChange(t *testing.T) {
	from := "upsell_51"
	order := "O-7"
	oldOwner, by := int64(10), int64(1)
	var out bytes.Buffer
	require.NoError(t, writeHistory(&out, []models.BasketTransitionLog{{
		CustomerID:     4,
		FromBasketKey:  &from,
		ToBasketKey:    "personal_39",
		AssignedToOld:  &oldOwner,
		TransitionType: enums.TransitionRelease,
		TriggeredBy:    &by,
		OrderID:        &order,
		CreatedAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}}))

	text := out.String()
	assert.Contains(t, text, "2026-03-10T12:00:00Z")
	assert.Contains(t, text, "upsell_51")
	assert.Contains(t, text, "10->-")
	assert.Contains(t, text, "O-7")
}
