package campaign

import (
	"fmt"
	"math"

	"promoflow/services/account"
)

// Action is the outcome of one decision evaluation.
type Action string

const (
	ActionContinue   Action = "continue"
	ActionRestart    Action = "restart"
	ActionSwitchWork Action = "switch_work"
)

// Interval names which configured delay the follow-up check uses.
type Interval int

const (
	IntervalNone Interval = iota
	IntervalShort
	IntervalLong
	IntervalQuick
)

// Metrics is the performance of the current batch.
type Metrics struct {
	Spent       float64
	Impressions int64
	Clicks      int64
	Leads       int64
}

// CostPerLead is +Inf when there are no leads.
func (m Metrics) CostPerLead() float64 {
	if m.Leads <= 0 {
		return math.Inf(1)
	}
	return m.Spent / float64(m.Leads)
}

func (m Metrics) ConversionRate() float64 {
	if m.Clicks <= 0 {
		return 0
	}
	return float64(m.Leads) / float64(m.Clicks)
}

type Thresholds struct {
	MinConsumption float64
	MaxCostPerLead float64
	MaxFailRetries int
}

// ForAccount overlays the account's non-zero settings on t.
func (t Thresholds) ForAccount(a *account.Account) Thresholds {
	if a == nil {
		return t
	}
	if a.MinConsumption > 0 {
		t.MinConsumption = a.MinConsumption
	}
	if a.MaxCostPerLead > 0 {
		t.MaxCostPerLead = a.MaxCostPerLead
	}
	if a.MaxFailRetries > 0 {
		t.MaxFailRetries = a.MaxFailRetries
	}
	return t
}

type Decision struct {
	Action              Action
	Reason              string
	IsEffective         bool
	ConsecutiveFailures int
	Next                Interval
}

// Decide classifies a batch and picks the next step. It is pure: the same
// inputs always produce the same decision.
//
// Spend below MinConsumption is not enough signal and leaves the failure
// streak alone. An effective batch resets it. An ineffective batch extends
// it and escalates to a work switch once the streak reaches MaxFailRetries.
func Decide(m Metrics, th Thresholds, failuresBefore int) Decision {
	cpl := m.CostPerLead()
	effective := cpl <= th.MaxCostPerLead

	if m.Spent < th.MinConsumption {
		return Decision{
			Action:              ActionContinue,
			Reason:              fmt.Sprintf("spend %.2f below check threshold %.2f, keep observing", m.Spent, th.MinConsumption),
			IsEffective:         effective,
			ConsecutiveFailures: failuresBefore,
			Next:                IntervalShort,
		}
	}

	if effective {
		return Decision{
			Action:              ActionContinue,
			Reason:              fmt.Sprintf("cost per lead %.2f within limit %.2f", cpl, th.MaxCostPerLead),
			IsEffective:         true,
			ConsecutiveFailures: 0,
			Next:                IntervalLong,
		}
	}

	failures := failuresBefore + 1
	if failures >= th.MaxFailRetries {
		return Decision{
			Action: ActionSwitchWork,
			Reason: fmt.Sprintf("%s, %d consecutive ineffective batches reached limit %d, switching work",
				ineffectiveReason(m, cpl, th), failures, th.MaxFailRetries),
			ConsecutiveFailures: failures,
			Next:                IntervalNone,
		}
	}

	return Decision{
		Action: ActionRestart,
		Reason: fmt.Sprintf("%s, restarting campaign (%d/%d)",
			ineffectiveReason(m, cpl, th), failures, th.MaxFailRetries),
		ConsecutiveFailures: failures,
		Next:                IntervalQuick,
	}
}

func ineffectiveReason(m Metrics, cpl float64, th Thresholds) string {
	if math.IsInf(cpl, 1) {
		return fmt.Sprintf("spent %.2f with no leads", m.Spent)
	}
	return fmt.Sprintf("cost per lead %.2f exceeds limit %.2f", cpl, th.MaxCostPerLead)
}
