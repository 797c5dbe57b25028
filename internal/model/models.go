// Package model defines the documents kept by the fitness ledger.
package model

import (
	"slices"
	"time"
)

// User is the profile document created once at profile-setup completion.
// ID is the opaque subject issued by the identity provider.
type User struct {
	ID                  string    `db:"id"`
	DisplayName         string    `db:"display_name"`
	AvatarURL           string    `db:"avatar_url"`
	Age                 int       `db:"age"`
	Gender              string    `db:"gender"`
	FitnessLevel        string    `db:"fitness_level"`
	FitnessGoals        []string  `db:"fitness_goals"`
	PreferredActivities []string  `db:"preferred_activities"`
	Streak              int       `db:"streak"`
	EarnedPoints        int64     `db:"earned_points"`
	PublicChallenges    []string  `db:"public_challenges"`
	JoinedChallenges    []string  `db:"joined_challenges"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// ChallengeList returns the user's challenge list that tracks challenges of the given kind.
func (u *User) ChallengeList(kind ChallengeKind) []string {
	if kind == ChallengeGroup {
		return u.JoinedChallenges
	}
	return u.PublicChallenges
}

// SetChallengeList replaces the list that tracks challenges of the given kind.
func (u *User) SetChallengeList(kind ChallengeKind, ids []string) {
	if kind == ChallengeGroup {
		u.JoinedChallenges = ids
		return
	}
	u.PublicChallenges = ids
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.FitnessGoals = slices.Clone(u.FitnessGoals)
	c.PreferredActivities = slices.Clone(u.PreferredActivities)
	c.PublicChallenges = slices.Clone(u.PublicChallenges)
	c.JoinedChallenges = slices.Clone(u.JoinedChallenges)
	return &c
}

// ChallengeKind distinguishes public (sponsored) challenges from group challenges.
type ChallengeKind string

const (
	ChallengePublic ChallengeKind = "public"
	ChallengeGroup  ChallengeKind = "group"
)

// Valid reports whether k is a known challenge kind.
func (k ChallengeKind) Valid() bool {
	return k == ChallengePublic || k == ChallengeGroup
}

// Challenge is a public or group challenge document.
// Participants is a denormalized counter that should equal len(Members).
type Challenge struct {
	ID           string        `db:"id"`
	Kind         ChallengeKind `db:"kind"`
	Title        string        `db:"title"`
	Sponsor      string        `db:"sponsor"`
	GroupName    string        `db:"group_name"`
	Duration     string        `db:"duration"`
	Image        string        `db:"image"`
	Description  string        `db:"description"`
	Reward       string        `db:"reward"`
	Members      []string      `db:"members"`
	Participants int           `db:"participants"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// Clone returns a deep copy of the challenge.
func (c *Challenge) Clone() *Challenge {
	cp := *c
	cp.Members = slices.Clone(c.Members)
	return &cp
}

// HasMember reports whether userID is in the member set.
func (c *Challenge) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// RewardType classifies catalog items.
type RewardType string

const (
	RewardDiscount     RewardType = "discount"
	RewardSubscription RewardType = "subscription"
	RewardProduct      RewardType = "product"
)

// Reward is a read-only catalog entry.
type Reward struct {
	ID          string     `db:"id"`
	Title       string     `db:"title"`
	PointsCost  int64      `db:"points_cost"`
	Brand       string     `db:"brand"`
	Type        RewardType `db:"type"`
	Value       string     `db:"value"`
	Description string     `db:"description"`
	Image       string     `db:"image"`
	ExpiresAt   *time.Time `db:"expires_at"`
}

// PointsEntry is one row of a user's append-only points history.
type PointsEntry struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Amount    int64     `db:"amount"`
	Reason    string    `db:"reason"`
	RequestID *string   `db:"request_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Redemption records a redeemed reward and the cost charged at the time.
type Redemption struct {
	ID         int64     `db:"id"`
	UserID     string    `db:"user_id"`
	RewardID   string    `db:"reward_id"`
	PointsCost int64     `db:"points_cost"`
	RequestID  *string   `db:"request_id"`
	RedeemedAt time.Time `db:"redeemed_at"`
}

// RankedUser is one leaderboard row.
type RankedUser struct {
	UserID       string `db:"id"`
	DisplayName  string `db:"display_name"`
	EarnedPoints int64  `db:"earned_points"`
}

// Timestamp renders t the way the ledger exposes timestamps (ISO-8601, UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
