package enums

// TransitionType tags every row written to basket_transition_log.
type TransitionType string

const (
	TransitionPendingAdminUnowned     TransitionType = "pending_admin_unowned"
	TransitionPendingAdminOwned       TransitionType = "pending_admin_owned"
	TransitionSold                    TransitionType = "sold"
	TransitionUpsellReturnPersonal    TransitionType = "upsell_return_personal"
	TransitionNotSold                 TransitionType = "not_sold"
	TransitionPickingDistToPool       TransitionType = "picking_dist_to_pool"
	TransitionPickingTelesaleOwn      TransitionType = "picking_telesale_own"
	TransitionPickingAdminToUpsell    TransitionType = "picking_admin_to_upsell"
	TransitionPickingTelesaleFromDist TransitionType = "picking_telesale_from_dist"
	TransitionPickingAdminNoOwner     TransitionType = "picking_admin_no_owner"
	TransitionAgingTimeout            TransitionType = "aging_timeout"
	TransitionFail                    TransitionType = "fail"
	TransitionRelease                 TransitionType = "release"
	TransitionUpsellReturnOwner       TransitionType = "upsell_return_owner"
	TransitionRedistribute            TransitionType = "redistribute"
	TransitionReclaim                 TransitionType = "reclaim"
	// TransitionDateRefresh marks a dwell-time refresh; it never produces a log row.
	TransitionDateRefresh TransitionType = "date_refresh"
)

var validTransitionTypes = []TransitionType{
	TransitionPendingAdminUnowned,
	TransitionPendingAdminOwned,
	TransitionSold,
	TransitionUpsellReturnPersonal,
	TransitionNotSold,
	TransitionPickingDistToPool,
	TransitionPickingTelesaleOwn,
	TransitionPickingAdminToUpsell,
	TransitionPickingTelesaleFromDist,
	TransitionPickingAdminNoOwner,
	TransitionAgingTimeout,
	TransitionFail,
	TransitionRelease,
	TransitionUpsellReturnOwner,
	TransitionRedistribute,
	TransitionReclaim,
	TransitionDateRefresh,
}

// String implements fmt.Stringer.
func (t TransitionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransitionType.
func (t TransitionType) IsValid() bool { return known(t, validTransitionTypes) }

// IsSale reports whether the transition is attributed to a telesale sale.
// Sale transitions reset the distribution counter and lift any hold.
func (t TransitionType) IsSale() bool {
	switch t {
	case TransitionSold, TransitionPickingTelesaleOwn, TransitionPickingTelesaleFromDist:
		return true
	}
	return false
}

// ParseTransitionType converts raw input into a TransitionType.
func ParseTransitionType(value string) (TransitionType, error) {
	return parse("transition type", value, validTransitionTypes)
}
