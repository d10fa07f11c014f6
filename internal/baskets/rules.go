package baskets

import "github.com/salesops/basket-engine/pkg/enums"

// Action is what the router must do with a Decision.
type Action int

const (
	// ActionNone means no rule applies, or the customer already sits in the target.
	ActionNone Action = iota
	// ActionSkip means the event is stale and must be reported as skipped.
	ActionSkip
	// ActionMove commits one basket transition.
	ActionMove
	// ActionRefresh only restarts the dwell clock in the current basket.
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionMove:
		return "move"
	case ActionRefresh:
		return "refresh"
	default:
		return "none"
	}
}

// Facts is everything the rules need, gathered before evaluation.
type Facts struct {
	Status            enums.OrderStatus
	CreatorID         int64
	CreatorIsTelesale bool
	Owner             *int64
	// CurrentRole is empty when the current basket fills no routing role.
	CurrentRole enums.BasketRole

	NewerOrderAdvanced     bool
	TelesaleInvolved       bool
	CameFromPersonalRecent bool
}

func (f Facts) owned() bool {
	return f.Owner != nil
}

func (f Facts) ownedByCreator() bool {
	return f.Owner != nil && *f.Owner == f.CreatorID
}

// Decision is the outcome of evaluating the rule table.
type Decision struct {
	Rule                string
	Action              Action
	Target              enums.BasketRole
	Type                enums.TransitionType
	AssignOwner         bool
	PreserveEnteredDate bool
	Reason              string
}

type rule struct {
	name    string
	when    func(Facts) bool
	outcome func(Facts) Decision
}

func move(target enums.BasketRole, t enums.TransitionType) func(Facts) Decision {
	return func(Facts) Decision {
		return Decision{Action: ActionMove, Target: target, Type: t}
	}
}

var pendingRules = []rule{
	{
		name:    "A3_telesale_created",
		when:    func(f Facts) bool { return f.CreatorIsTelesale },
		outcome: func(Facts) Decision { return Decision{Action: ActionNone, Reason: "await_picking"} },
	},
	{
		name:    "A1_unowned",
		when:    func(f Facts) bool { return !f.owned() },
		outcome: move(enums.BasketRoleDistributionPool, enums.TransitionPendingAdminUnowned),
	},
	{
		name:    "A2_owned",
		when:    func(f Facts) bool { return f.owned() },
		outcome: move(enums.BasketRoleUpsellReview, enums.TransitionPendingAdminOwned),
	},
}

var pickingRules = []rule{
	{
		name:    "P0_race_guard",
		when:    func(f Facts) bool { return f.NewerOrderAdvanced },
		outcome: func(Facts) Decision { return Decision{Action: ActionSkip, Reason: "newer_order_advanced"} },
	},
	{
		name: "P1_upsell_sold",
		when: func(f Facts) bool {
			return f.CurrentRole == enums.BasketRoleUpsellReview && f.TelesaleInvolved
		},
		outcome: move(enums.BasketRolePersonalRecent, enums.TransitionSold),
	},
	{
		name: "P1_upsell_return_personal",
		when: func(f Facts) bool {
			return f.CurrentRole == enums.BasketRoleUpsellReview && f.CameFromPersonalRecent
		},
		outcome: func(Facts) Decision {
			return Decision{
				Action:              ActionMove,
				Target:              enums.BasketRolePersonalRecent,
				Type:                enums.TransitionUpsellReturnPersonal,
				PreserveEnteredDate: true,
			}
		},
	},
	{
		name:    "P1_upsell_not_sold",
		when:    func(f Facts) bool { return f.CurrentRole == enums.BasketRoleUpsellReview },
		outcome: move(enums.BasketRoleNewCustomer, enums.TransitionNotSold),
	},
	{
		name:    "P2_pool_graduated",
		when:    func(f Facts) bool { return f.CurrentRole == enums.BasketRoleDistributionPool },
		outcome: move(enums.BasketRolePoolGraduated, enums.TransitionPickingDistToPool),
	},
	{
		name: "P3_owner_refresh",
		when: func(f Facts) bool {
			return f.CreatorIsTelesale && f.ownedByCreator() && f.CurrentRole == enums.BasketRolePersonalRecent
		},
		outcome: func(Facts) Decision {
			return Decision{Action: ActionRefresh, Target: enums.BasketRolePersonalRecent, Type: enums.TransitionDateRefresh}
		},
	},
	{
		// A telesale agent selling to someone else's customer keeps the
		// existing owner; the customer still counts as freshly sold.
		name:    "P3_telesale_owned",
		when:    func(f Facts) bool { return f.CreatorIsTelesale && f.owned() },
		outcome: move(enums.BasketRolePersonalRecent, enums.TransitionPickingTelesaleOwn),
	},
	{
		name:    "P3_admin_owned",
		when:    func(f Facts) bool { return f.owned() },
		outcome: move(enums.BasketRoleUpsellReview, enums.TransitionPickingAdminToUpsell),
	},
	{
		name: "P4_telesale_claims",
		when: func(f Facts) bool { return f.CreatorIsTelesale },
		outcome: func(Facts) Decision {
			return Decision{
				Action:      ActionMove,
				Target:      enums.BasketRolePersonalRecent,
				Type:        enums.TransitionPickingTelesaleFromDist,
				AssignOwner: true,
			}
		},
	},
	{
		name:    "P4_admin_unowned",
		when:    func(Facts) bool { return true },
		outcome: move(enums.BasketRoleDistributionPool, enums.TransitionPickingAdminNoOwner),
	},
}

// Evaluate walks the rule table for the event status and returns the first
// matching outcome. It never touches persistence.
func Evaluate(f Facts) Decision {
	var table []rule
	switch f.Status {
	case enums.OrderStatusPending:
		table = pendingRules
	case enums.OrderStatusPicking, enums.OrderStatusShipping:
		table = pickingRules
	default:
		return Decision{Rule: "status_ignored", Action: ActionNone, Reason: "status_not_routable"}
	}

	for _, r := range table {
		if !r.when(f) {
			continue
		}
		d := r.outcome(f)
		d.Rule = r.name
		if d.Action == ActionMove && !d.AssignOwner && d.Target == f.CurrentRole {
			return Decision{Rule: r.name, Action: ActionNone, Target: d.Target, Reason: "already_in_target"}
		}
		return d
	}
	return Decision{Rule: "no_match", Action: ActionNone, Reason: "no_rule_matched"}
}
