package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"fitness-ledger/internal/catalog"
	"fitness-ledger/internal/model"
)

// TestBalanceNeverNegativeProperty drives random award/redeem sequences and
// checks after every call that the balance is non-negative, that rejected
// redemptions change nothing, and that the balance equals its history.
func TestBalanceNeverNegativeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := newTestEnv(t, false)
		ctx := context.Background()
		env.user(t, "u")

		costs := rapid.SliceOfN(rapid.Int64Range(1, 300), 1, 4).Draw(t, "costs")
		for i, c := range costs {
			env.reward(t, fmt.Sprintf("r%d", i), c)
		}
		reasons := catalog.GetAllReasons()

		var expected int64
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "award") {
				cfg := reasons[rapid.IntRange(0, len(reasons)-1).Draw(t, "reason")]
				amount := rapid.Int64Range(1, 200).Draw(t, "amount")
				res, err := env.ledger.Points.Award(ctx, AwardRequest{UserID: "u", Amount: amount, Reason: cfg.Reason})
				if err != nil {
					t.Fatalf("award failed: %v", err)
				}
				expected += amount
				if res.Balance != expected {
					t.Fatalf("award balance %d, expected %d", res.Balance, expected)
				}
			} else {
				idx := rapid.IntRange(0, len(costs)-1).Draw(t, "reward")
				cost := costs[idx]
				_, err := env.ledger.Points.Redeem(ctx, RedeemRequest{UserID: "u", RewardID: fmt.Sprintf("r%d", idx), PointsCost: cost})
				switch {
				case err == nil:
					if expected < cost {
						t.Fatalf("redeem of %d accepted with balance %d", cost, expected)
					}
					expected -= cost
				case errors.Is(err, ErrInsufficientBalance):
					if expected >= cost {
						t.Fatalf("redeem of %d rejected with balance %d", cost, expected)
					}
				default:
					t.Fatalf("redeem failed: %v", err)
				}
			}

			balance := env.balance(t, "u")
			if balance < 0 {
				t.Fatalf("balance went negative: %d", balance)
			}
			if balance != expected {
				t.Fatalf("balance %d, expected %d", balance, expected)
			}
		}

		report, err := env.ledger.Points.Audit(ctx, "u")
		if err != nil {
			t.Fatalf("audit failed: %v", err)
		}
		if !report.Consistent() {
			t.Fatalf("audit inconsistent: balance %d, history %d", report.Balance, report.Expected())
		}
	})
}

// TestMembershipConsistencyProperty drives random join/leave sequences over a
// few users and challenges and checks that both sides of every membership
// agree with a reference set after every call.
func TestMembershipConsistencyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := newTestEnv(t, false)
		ctx := context.Background()

		users := []string{"u1", "u2", "u3"}
		challenges := map[string]model.ChallengeKind{
			"p1": model.ChallengePublic,
			"g1": model.ChallengeGroup,
		}
		for _, u := range users {
			env.user(t, u)
		}
		for id, kind := range challenges {
			env.challenge(t, id, kind)
		}
		challengeIDs := []string{"g1", "p1"}

		ref := make(map[string]map[string]bool)
		for _, c := range challengeIDs {
			ref[c] = make(map[string]bool)
		}

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			u := rapid.SampledFrom(users).Draw(t, "user")
			c := rapid.SampledFrom(challengeIDs).Draw(t, "challenge")
			join := rapid.Bool().Draw(t, "join")

			var res *MembershipResult
			var err error
			if join {
				res, err = env.ledger.Membership.Join(ctx, u, c)
			} else {
				res, err = env.ledger.Membership.Leave(ctx, u, c)
			}
			if err != nil {
				t.Fatalf("membership change failed: %v", err)
			}
			if res.Changed != (ref[c][u] != join) {
				t.Fatalf("Changed=%v for join=%v with prior membership %v", res.Changed, join, ref[c][u])
			}
			ref[c][u] = join

			for _, cid := range challengeIDs {
				ch, err := env.store.GetChallenge(ctx, cid)
				if err != nil {
					t.Fatalf("get challenge: %v", err)
				}
				if ch.Participants != len(ch.Members) {
					t.Fatalf("challenge %s participants %d, members %d", cid, ch.Participants, len(ch.Members))
				}
				if _, dup := dedupe(ch.Members); dup {
					t.Fatalf("challenge %s has duplicate members %v", cid, ch.Members)
				}
				for _, uid := range users {
					user, err := env.store.GetUser(ctx, uid)
					if err != nil {
						t.Fatalf("get user: %v", err)
					}
					inMembers := ch.HasMember(uid)
					inList := slices.Contains(user.ChallengeList(ch.Kind), cid)
					if inMembers != ref[cid][uid] || inList != ref[cid][uid] {
						t.Fatalf("user %s challenge %s: members=%v list=%v want %v", uid, cid, inMembers, inList, ref[cid][uid])
					}
				}
			}
		}
	})
}
