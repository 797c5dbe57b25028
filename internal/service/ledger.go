package service

// Ledger bundles the services built on one store.
type Ledger struct {
	Membership  *MembershipService
	Points      *PointsService
	Profile     *ProfileService
	Catalog     *CatalogService
	Leaderboard *LeaderboardService
	Reconciler  *Reconciler
}

// NewLedger wires every service to deps.
func NewLedger(deps Deps, awardOnJoin bool) *Ledger {
	deps = deps.withDefaults()
	return &Ledger{
		Membership:  NewMembershipService(deps, awardOnJoin),
		Points:      NewPointsService(deps),
		Profile:     NewProfileService(deps),
		Catalog:     NewCatalogService(deps),
		Leaderboard: NewLeaderboardService(deps),
		Reconciler:  NewReconciler(deps),
	}
}
