// Package catalog holds the static points table and the reward panel rendering.
package catalog

// Reason identifies why points were awarded.
type Reason string

// Award reasons. The set is closed; new reasons are added here.
const (
	ReasonWorkoutCompletion    Reason = "WORKOUT_COMPLETION"
	ReasonMealTracking         Reason = "MEAL_TRACKING"
	ReasonChallengeJoin        Reason = "CHALLENGE_JOIN"
	ReasonChallengeCompletion  Reason = "CHALLENGE_COMPLETION"
	ReasonDailyStreak          Reason = "DAILY_STREAK"
	ReasonMilestoneAchievement Reason = "MILESTONE_ACHIEVEMENT"
)

// ReasonConfig describes one entry of the points table.
type ReasonConfig struct {
	Reason      Reason
	Name        string
	Emoji       string
	Points      int64
	Description string
	// Command is the short keyword used by presentation surfaces (e.g. /log workout).
	Command string
}

// PointsTable maps every reason to its canonical point value.
var PointsTable = map[Reason]ReasonConfig{
	ReasonWorkoutCompletion: {
		Reason:      ReasonWorkoutCompletion,
		Name:        "Workout completed",
		Emoji:       "🏋️",
		Points:      50,
		Description: "Finish any workout session",
		Command:     "workout",
	},
	ReasonMealTracking: {
		Reason:      ReasonMealTracking,
		Name:        "Meal tracked",
		Emoji:       "🥗",
		Points:      20,
		Description: "Log a meal",
		Command:     "meal",
	},
	ReasonChallengeJoin: {
		Reason:      ReasonChallengeJoin,
		Name:        "Challenge joined",
		Emoji:       "🚩",
		Points:      100,
		Description: "Join a public or group challenge",
		Command:     "join",
	},
	ReasonChallengeCompletion: {
		Reason:      ReasonChallengeCompletion,
		Name:        "Challenge completed",
		Emoji:       "🏆",
		Points:      500,
		Description: "Complete a challenge",
		Command:     "complete",
	},
	ReasonDailyStreak: {
		Reason:      ReasonDailyStreak,
		Name:        "Daily streak",
		Emoji:       "🔥",
		Points:      30,
		Description: "Keep your daily streak alive",
		Command:     "streak",
	},
	ReasonMilestoneAchievement: {
		Reason:      ReasonMilestoneAchievement,
		Name:        "Milestone reached",
		Emoji:       "🎯",
		Points:      200,
		Description: "Reach a personal milestone",
		Command:     "milestone",
	},
}

// GetAllReasons returns the points table in display order.
func GetAllReasons() []ReasonConfig {
	order := []Reason{
		ReasonWorkoutCompletion,
		ReasonMealTracking,
		ReasonChallengeJoin,
		ReasonChallengeCompletion,
		ReasonDailyStreak,
		ReasonMilestoneAchievement,
	}

	reasons := make([]ReasonConfig, 0, len(order))
	for _, r := range order {
		if cfg, ok := PointsTable[r]; ok {
			reasons = append(reasons, cfg)
		}
	}
	return reasons
}

// GetReason returns the table entry for r.
func GetReason(r Reason) (ReasonConfig, bool) {
	cfg, ok := PointsTable[r]
	return cfg, ok
}

// ReasonByCommand resolves a presentation keyword such as "workout".
func ReasonByCommand(cmd string) (ReasonConfig, bool) {
	for _, cfg := range PointsTable {
		if cfg.Command == cmd {
			return cfg, true
		}
	}
	return ReasonConfig{}, false
}

// Valid reports whether r is in the points table.
func (r Reason) Valid() bool {
	_, ok := PointsTable[r]
	return ok
}

// Points returns the canonical value for r, or 0 if r is unknown.
func (r Reason) Points() int64 {
	return PointsTable[r].Points
}
