package leadscore

import "strings"

// Tier is the qualification bucket derived from a numeric lead score.
type Tier string

const (
	TierVeryHot     Tier = "Very Hot"
	TierHot         Tier = "Hot"
	TierWarm        Tier = "Warm"
	TierCold        Tier = "Cold"
	TierUnqualified Tier = "Unqualified"
)

// Signals are the per-turn engagement metrics a lead score is computed from.
// Each component is clamped to its weight cap before summing.
type Signals struct {
	InterestLevel    int
	BudgetMatch      int
	EngagementTime   int
	FollowUp         int
	OfferResponse    int
	Appointment      int
	PastInteractions int
}

// Weight caps per signal. They sum to 100, so a fully saturated signal
// vector reaches exactly 100.
const (
	capInterestLevel    = 30
	capBudgetMatch      = 20
	capEngagementTime   = 15
	capFollowUp         = 10
	capOfferResponse    = 10
	capAppointment      = 10
	capPastInteractions = 5
)

// Score computes the lead score for a signal vector. Pure and
// deterministic; the result is always within [0, 100].
func Score(s Signals) int {
	score := clamp(s.InterestLevel, capInterestLevel) +
		clamp(s.BudgetMatch, capBudgetMatch) +
		clamp(s.EngagementTime, capEngagementTime) +
		clamp(s.FollowUp, capFollowUp) +
		clamp(s.OfferResponse, capOfferResponse) +
		clamp(s.Appointment, capAppointment) +
		clamp(s.PastInteractions, capPastInteractions)
	if score > 100 {
		score = 100
	}
	return score
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// Threshold maps a minimum score to a tier and its recommended action.
type Threshold struct {
	MinScore       int
	Tier           Tier
	Recommendation string
}

// ThresholdSet is an ordered threshold table, evaluated top-down with first
// match winning. The final entry should have MinScore 0 so the table is
// exhaustive over [0, 100].
type ThresholdSet []Threshold

// FiveTier is the canonical classification table.
var FiveTier = ThresholdSet{
	{85, TierVeryHot, "Call immediately and assign a dedicated agent."},
	{70, TierHot, "Follow-up within 24 hours with a personalized proposal."},
	{50, TierWarm, "Send a curated property list and schedule a follow-up."},
	{30, TierCold, "Add to email nurturing campaign with occasional check-ins."},
	{0, TierUnqualified, "Minimal engagement. Include in long-term awareness list."},
}

// FourTier is the coarser table used by the conversational fast path.
var FourTier = ThresholdSet{
	{80, TierHot, "Immediate follow-up with personalized offers."},
	{40, TierWarm, "Schedule automated follow-ups and send promotions."},
	{30, TierCold, "Engage with newsletters and remarketing strategies."},
	{0, TierUnqualified, "Minimal contact. Add to long-term CRM campaigns."},
}

// Classify resolves a score against the threshold set.
func (ts ThresholdSet) Classify(score int) (Tier, string) {
	for _, th := range ts {
		if score >= th.MinScore {
			return th.Tier, th.Recommendation
		}
	}
	return TierUnqualified, ""
}

// DeriveSignals computes the signal vector for the current turn.
// userTurns counts user messages in the conversation including the one
// being processed; message is the raw incoming text; budget is the intake
// budget field ("" when not yet collected).
func DeriveSignals(userTurns int, message, budget string) Signals {
	lower := strings.ToLower(message)
	s := Signals{
		InterestLevel:  min(20, userTurns*3),
		EngagementTime: min(10, userTurns*2),
	}
	if strings.TrimSpace(budget) != "" {
		s.BudgetMatch = 15
	}
	if strings.Contains(lower, "follow up") {
		s.FollowUp = 5
	}
	if strings.Contains(lower, "offer") {
		s.OfferResponse = 5
	}
	if strings.Contains(lower, "appointment") {
		s.Appointment = 5
	}
	if userTurns > 1 {
		s.PastInteractions = 5
	}
	return s
}
