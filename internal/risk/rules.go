// Package risk implements the pure rule set evaluated by the position
// monitors: leverage-bracketed stop-loss, tiered trailing stop, and staged
// partial take-profit. Every check is a stateless function of its arguments;
// calling one twice with the same inputs always returns the same decision.
package risk

import "fmt"

// Tier is one trailing-stop level. Once the peak PnL% reaches Trigger the
// tier is armed; the position closes when current PnL% falls to StopAt.
type Tier struct {
	Trigger float64
	StopAt  float64
}

// Stage is one partial take-profit milestone: reaching Trigger closes the
// position down to ClosePercent of the original size, cumulatively.
type Stage struct {
	Trigger      float64
	ClosePercent float64
}

// Profile is the risk configuration for one strategy. It carries no defaults;
// the configuration layer validates ordering before a Profile is built.
type Profile struct {
	LeverageMin int
	LeverageMax int

	// Stop-loss thresholds per leverage bracket, negative leveraged PnL
	// percentages. Higher leverage brackets use tighter (less negative)
	// thresholds in practice, but the rule set does not assume so.
	StopLossLow  float64
	StopLossMid  float64
	StopLossHigh float64

	// Tiers are ordered: Trigger and StopAt strictly ascending.
	Tiers [3]Tier

	// Stages are ordered: Trigger and ClosePercent strictly ascending.
	Stages [3]Stage
}

// StopLossDecision is the result of a stop-loss check.
type StopLossDecision struct {
	Triggered bool
	Threshold float64
}

// CheckStopLoss returns whether the leveraged PnL percentage has fallen to or
// below the stop threshold for the position's leverage bracket. The bracket
// cut points are LeverageMin + (LeverageMax-LeverageMin)*0.33 and *0.67.
func CheckStopLoss(pnlPct float64, leverage int, p Profile) StopLossDecision {
	span := float64(p.LeverageMax - p.LeverageMin)
	cut1 := float64(p.LeverageMin) + span*0.33
	cut2 := float64(p.LeverageMin) + span*0.67

	threshold := p.StopLossHigh
	switch {
	case float64(leverage) <= cut1:
		threshold = p.StopLossLow
	case float64(leverage) <= cut2:
		threshold = p.StopLossMid
	}

	return StopLossDecision{
		Triggered: pnlPct <= threshold,
		Threshold: threshold,
	}
}

// TrailingDecision is the result of a trailing-stop check.
type TrailingDecision struct {
	ShouldClose bool
	Level       string
	Trigger     float64
	StopAt      float64
}

// CheckTrailingStop evaluates the trailing stop against the recorded peak.
// Only the highest tier whose trigger the peak has reached is evaluated;
// lower tiers are superseded once a higher one has been reached, even if the
// peak never closes through that tier's stop. If the peak has reached no
// tier, no close is possible.
func CheckTrailingStop(peakPct, currentPct float64, p Profile) TrailingDecision {
	for i := len(p.Tiers) - 1; i >= 0; i-- {
		t := p.Tiers[i]
		if peakPct < t.Trigger {
			continue
		}
		return TrailingDecision{
			ShouldClose: currentPct <= t.StopAt,
			Level:       fmt.Sprintf("level%d", i+1),
			Trigger:     t.Trigger,
			StopAt:      t.StopAt,
		}
	}
	return TrailingDecision{}
}

// PartialDecision is the result of a partial take-profit check. ClosePercent
// is the incremental percentage of the original size still owed for the
// firing stage, never the stage's absolute target.
type PartialDecision struct {
	ShouldClose        bool
	Stage              string
	Trigger            float64
	ClosePercent       float64
	TotalClosedPercent float64
}

// CheckPartialTakeProfit evaluates the staged take-profit ladder in ascending
// order. A stage fires only if the current PnL% has reached its trigger and
// the cumulative already-closed percentage is still below the stage's target,
// which makes each stage fire at most once per position lifetime.
func CheckPartialTakeProfit(currentPct, alreadyClosedPct float64, p Profile) PartialDecision {
	for i, s := range p.Stages {
		if currentPct < s.Trigger {
			continue
		}
		if alreadyClosedPct >= s.ClosePercent {
			continue
		}
		return PartialDecision{
			ShouldClose:        true,
			Stage:              fmt.Sprintf("stage%d", i+1),
			Trigger:            s.Trigger,
			ClosePercent:       s.ClosePercent - alreadyClosedPct,
			TotalClosedPercent: s.ClosePercent,
		}
	}
	return PartialDecision{}
}
