package baskets

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/db/models"
	dbtypes "github.com/salesops/basket-engine/pkg/db/types"
	"github.com/salesops/basket-engine/pkg/enums"
	"github.com/salesops/basket-engine/pkg/outbox"
)

const (
	keyNew      = "new_38"
	keyPersonal = "personal_39"
	keyUpsell   = "upsell_51"
	keyPoolGrad = "pool_52"
	keyDistPool = "dist_53"
	keyMid      = "mid_6_12m"
	keyLong     = "mid_1_3y"
	keyAncient  = "ancient"

	userAdmin    int64 = 1
	userTelesale int64 = 10
	userOther    int64 = 11
)

var schema = []string{
	`CREATE TABLE basket_configs (
  basket_key TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  role TEXT,
  linked_basket_key TEXT,
  hold_days_before_redistribute INTEGER NOT NULL DEFAULT 0,
  max_distribution_count INTEGER NOT NULL DEFAULT 0,
  on_max_dist_basket_key TEXT,
  on_fail_basket_key TEXT,
  on_fail_reevaluate INTEGER NOT NULL DEFAULT 0,
  fail_after_days INTEGER,
  min_order_count INTEGER,
  max_order_count INTEGER,
  min_days_since_last_order INTEGER,
  max_days_since_last_order INTEGER,
  min_days_since_first_order INTEGER,
  min_days_since_registration INTEGER,
  is_active INTEGER NOT NULL DEFAULT 1,
  display_order INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE customers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  current_basket_key TEXT NOT NULL,
  assigned_to INTEGER,
  previous_assigned_to TEXT NOT NULL DEFAULT '[]',
  basket_entered_date DATETIME,
  hold_until_date DATETIME,
  distribution_count INTEGER NOT NULL DEFAULT 0,
  order_count INTEGER NOT NULL DEFAULT 0,
  first_order_date DATETIME,
  last_order_date DATETIME,
  date_registered DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  customer_id INTEGER NOT NULL,
  status TEXT NOT NULL,
  creator_id INTEGER NOT NULL,
  order_date DATETIME NOT NULL,
  routing_owner_id INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  parent_order_id TEXT NOT NULL,
  creator_id INTEGER,
  basket_key_at_sale TEXT,
  sku TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  role TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_assigned_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE basket_transition_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  customer_id INTEGER NOT NULL,
  from_basket_key TEXT,
  to_basket_key TEXT NOT NULL,
  assigned_to_old INTEGER,
  assigned_to_new INTEGER,
  transition_type TEXT NOT NULL,
  triggered_by INTEGER,
  order_id TEXT,
  notes TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	now     time.Time
	repo    Repository
	catalog *Catalog
	exec    *Executor
	prober  *InvolvementProber
	router  *Router
	sweeper *Sweeper
	release *ReleasePolicy
}

func newFixture(t *testing.T, opts ...func(*[]models.BasketConfig)) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	configs := defaultBaskets()
	for _, opt := range opts {
		opt(&configs)
	}
	require.NoError(t, conn.Create(&configs).Error)

	users := []models.User{
		{ID: userAdmin, Name: "admin", Role: enums.UserRoleAdmin, IsActive: true},
		{ID: userTelesale, Name: "telesale", Role: enums.UserRoleTelesale, IsActive: true},
		{ID: userOther, Name: "telesale-2", Role: enums.UserRoleTelesale, IsActive: true},
	}
	require.NoError(t, conn.Create(&users).Error)

	catalog, err := NewCatalog(configs)
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		db:      conn,
		now:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		repo:    NewRepository(conn),
		catalog: catalog,
	}
	clock := func() time.Time { return f.now }

	client := db.NewFromConn(conn, 0)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	f.exec, err = NewExecutor(f.repo, client, emitter, catalog, nil, nil)
	require.NoError(t, err)
	f.exec.now = clock

	guard, err := NewRaceGuard(f.repo)
	require.NoError(t, err)
	f.prober, err = NewInvolvementProber(f.repo, 7*24*time.Hour, []enums.UserRole{enums.UserRoleTelesale, enums.UserRoleTelesaleLead})
	require.NoError(t, err)
	f.prober.now = clock

	f.router, err = NewRouter(f.repo, catalog, guard, f.prober, f.exec, nil, nil)
	require.NoError(t, err)

	f.sweeper, err = NewSweeper(f.repo, catalog, f.exec, 0, nil, nil)
	require.NoError(t, err)
	f.sweeper.now = clock

	f.release, err = NewReleasePolicy(f.repo, client, catalog, f.exec, nil)
	require.NoError(t, err)
	return f
}

func roleRef(r enums.BasketRole) *enums.BasketRole { return &r }
func strRef(s string) *string                     { return &s }
func intRef(i int) *int                           { return &i }
func idRef(i int64) *int64                        { return &i }

func defaultBaskets() []models.BasketConfig {
	return []models.BasketConfig{
		{BasketKey: keyNew, Name: "New customer", Role: roleRef(enums.BasketRoleNewCustomer), IsActive: true, DisplayOrder: 1},
		{BasketKey: keyPersonal, Name: "Personal 1-2m", Role: roleRef(enums.BasketRolePersonalRecent), IsActive: true, DisplayOrder: 2},
		{BasketKey: keyUpsell, Name: "Upsell review", Role: roleRef(enums.BasketRoleUpsellReview), IsActive: true, DisplayOrder: 3},
		{BasketKey: keyPoolGrad, Name: "Pool graduated", Role: roleRef(enums.BasketRolePoolGraduated), IsActive: true, DisplayOrder: 4},
		{BasketKey: keyDistPool, Name: "Distribution pool", Role: roleRef(enums.BasketRoleDistributionPool), IsActive: true, DisplayOrder: 5},
		{BasketKey: keyMid, Name: "6-12 months", Role: roleRef(enums.BasketRoleMidTier), IsActive: true, DisplayOrder: 6},
		{BasketKey: keyLong, Name: "1-3 years", Role: roleRef(enums.BasketRoleLongTier), IsActive: true, DisplayOrder: 7},
		{BasketKey: keyAncient, Name: "Ancient", Role: roleRef(enums.BasketRoleAncientTier), IsActive: true, DisplayOrder: 8},
	}
}

func withBasket(cfg models.BasketConfig) func(*[]models.BasketConfig) {
	return func(list *[]models.BasketConfig) {
		*list = append(*list, cfg)
	}
}

func (f *fixture) customer(basket string, owner *int64, entered time.Time) models.Customer {
	f.t.Helper()
	entered = entered.UTC()
	c := models.Customer{
		Name:               "customer",
		CurrentBasketKey:   basket,
		AssignedTo:         owner,
		PreviousAssignedTo: dbtypes.Int64List{},
		BasketEnteredDate:  &entered,
		DateRegistered:     f.now.AddDate(-1, 0, 0),
	}
	require.NoError(f.t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) order(id string, customerID, creator int64, status enums.OrderStatus, date time.Time) models.Order {
	f.t.Helper()
	o := models.Order{
		ID:         id,
		CustomerID: customerID,
		Status:     status,
		CreatorID:  creator,
		OrderDate:  date.UTC(),
	}
	require.NoError(f.t, f.db.Create(&o).Error)
	return o
}

func (f *fixture) item(orderID string, creator int64) {
	f.t.Helper()
	item := models.OrderItem{ParentOrderID: orderID, CreatorID: &creator, SKU: "SKU-1", Quantity: 1}
	require.NoError(f.t, f.db.Create(&item).Error)
}

func (f *fixture) setStatus(orderID string, status enums.OrderStatus) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&models.Order{}).Where("id = ?", orderID).Update("status", status).Error)
}

func (f *fixture) reload(id int64) models.Customer {
	f.t.Helper()
	var c models.Customer
	require.NoError(f.t, f.db.First(&c, "id = ?", id).Error)
	return c
}

func (f *fixture) logs(customerID int64) []models.BasketTransitionLog {
	f.t.Helper()
	entries, err := f.repo.ListTransitionLog(f.ctx, customerID)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) outboxCount() int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.OutboxEvent{}).Count(&n).Error)
	return n
}
