package enums

// BasketRole is the logical slot a configured basket fills in the routing
// rules. Rules address baskets by role; the catalog resolves the concrete key.
type BasketRole string

const (
	BasketRoleNewCustomer      BasketRole = "new_customer"
	BasketRolePersonalRecent   BasketRole = "personal_recent"
	BasketRoleUpsellReview     BasketRole = "upsell_review"
	BasketRolePoolGraduated    BasketRole = "pool_graduated"
	BasketRoleDistributionPool BasketRole = "distribution_pool"
	BasketRoleMidTier          BasketRole = "mid_tier"
	BasketRoleLongTier         BasketRole = "long_tier"
	BasketRoleAncientTier      BasketRole = "ancient_tier"
)

// RequiredBasketRoles must each be bound to exactly one active basket.
var RequiredBasketRoles = []BasketRole{
	BasketRoleNewCustomer,
	BasketRolePersonalRecent,
	BasketRoleUpsellReview,
	BasketRolePoolGraduated,
	BasketRoleDistributionPool,
	BasketRoleMidTier,
	BasketRoleLongTier,
	BasketRoleAncientTier,
}

// String implements fmt.Stringer.
func (r BasketRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known BasketRole.
func (r BasketRole) IsValid() bool { return known(r, RequiredBasketRoles) }

// ParseBasketRole converts raw input into a BasketRole.
func ParseBasketRole(value string) (BasketRole, error) {
	return parse("basket role", value, RequiredBasketRoles)
}
