package cost

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// BudgetStatus reports spending against the configured limits. Budgets are
// advisory: the over-budget flag degrades routing scores, it never blocks a
// request outright.
type BudgetStatus struct {
	DailyBudgetUSD      float64 `json:"daily_budget_usd"`
	DailySpentUSD       float64 `json:"daily_spent_usd"`
	DailyRemainingUSD   float64 `json:"daily_remaining_usd"`
	MonthlyBudgetUSD    float64 `json:"monthly_budget_usd"`
	MonthlySpentUSD     float64 `json:"monthly_spent_usd"`
	MonthlyRemainingUSD float64 `json:"monthly_remaining_usd"`
	IsOverBudget        bool    `json:"is_over_budget"`
}

// Summary breaks recorded spending down per provider for the current UTC
// day and month.
type Summary struct {
	Daily   map[string]float64 `json:"daily"`
	Monthly map[string]float64 `json:"monthly"`
	Budget  BudgetStatus       `json:"budget_status"`
}

// Tracker records actual spending in UTC daily and monthly buckets.
type Tracker struct {
	mutex sync.Mutex

	dailyBudgetUSD   float64
	monthlyBudgetUSD float64

	// Bucket key "provider:2025-01-30" -> USD spent.
	dailyCosts map[string]float64

	// Bucket key "provider:2025-01" -> USD spent.
	monthlyCosts map[string]float64

	lastResetDay string

	clock  clock.Clock
	logger *zap.SugaredLogger
}

func NewTracker(dailyBudgetUSD float64, monthlyBudgetUSD float64, logger *zap.SugaredLogger) *Tracker {
	return newTrackerWithClock(dailyBudgetUSD, monthlyBudgetUSD, logger, clock.New())
}

func newTrackerWithClock(dailyBudgetUSD float64, monthlyBudgetUSD float64, logger *zap.SugaredLogger, clk clock.Clock) *Tracker {
	return &Tracker{
		dailyBudgetUSD:   dailyBudgetUSD,
		monthlyBudgetUSD: monthlyBudgetUSD,
		dailyCosts:       make(map[string]float64),
		monthlyCosts:     make(map[string]float64),
		lastResetDay:     clk.Now().UTC().Format("2006-01-02"),
		clock:            clk,
		logger:           logger,
	}
}

func (t *Tracker) today() string {
	return t.clock.Now().UTC().Format("2006-01-02")
}

func (t *Tracker) month() string {
	return t.clock.Now().UTC().Format("2006-01")
}

// Drops stale daily buckets once the UTC day rolls over. Caller must hold
// the mutex.
func (t *Tracker) resetIfDayChanged() {
	today := t.today()
	if today == t.lastResetDay {
		return
	}
	suffix := ":" + today
	for key := range t.dailyCosts {
		if !strings.HasSuffix(key, suffix) {
			delete(t.dailyCosts, key)
		}
	}
	t.lastResetDay = today
}

// RecordCost adds actual spending for a provider to the current buckets.
func (t *Tracker) RecordCost(providerID string, costUSD float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.resetIfDayChanged()

	dailyKey := fmt.Sprintf("%s:%s", providerID, t.today())
	t.dailyCosts[dailyKey] += costUSD

	monthlyKey := fmt.Sprintf("%s:%s", providerID, t.month())
	t.monthlyCosts[monthlyKey] += costUSD

	t.logger.Debugw("recorded cost", "provider", providerID, "cost_usd", costUSD)
}

// GetBudgetStatus returns current spending against the limits. Remaining
// amounts are floored at zero.
func (t *Tracker) GetBudgetStatus() BudgetStatus {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.budgetStatusLocked()
}

func (t *Tracker) budgetStatusLocked() BudgetStatus {
	t.resetIfDayChanged()

	daySuffix := ":" + t.today()
	dailySpent := 0.0
	for key, spent := range t.dailyCosts {
		if strings.HasSuffix(key, daySuffix) {
			dailySpent += spent
		}
	}

	monthSuffix := ":" + t.month()
	monthlySpent := 0.0
	for key, spent := range t.monthlyCosts {
		if strings.HasSuffix(key, monthSuffix) {
			monthlySpent += spent
		}
	}

	status := BudgetStatus{
		DailyBudgetUSD:   t.dailyBudgetUSD,
		DailySpentUSD:    dailySpent,
		MonthlyBudgetUSD: t.monthlyBudgetUSD,
		MonthlySpentUSD:  monthlySpent,
	}
	status.DailyRemainingUSD = math.Max(0, status.DailyBudgetUSD-status.DailySpentUSD)
	status.MonthlyRemainingUSD = math.Max(0, status.MonthlyBudgetUSD-status.MonthlySpentUSD)
	status.IsOverBudget = status.DailyRemainingUSD <= 0 || status.MonthlyRemainingUSD <= 0
	return status
}

// CanAfford reports whether the estimate fits the remaining budgets. It
// does not reserve anything; two concurrent callers can both be told yes.
func (t *Tracker) CanAfford(estimatedCostUSD float64) bool {
	status := t.GetBudgetStatus()
	return estimatedCostUSD <= status.DailyRemainingUSD &&
		estimatedCostUSD <= status.MonthlyRemainingUSD
}

// GetSummary breaks spending down per provider for the given provider IDs.
func (t *Tracker) GetSummary(providerIDs []string) Summary {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	summary := Summary{
		Daily:   make(map[string]float64, len(providerIDs)),
		Monthly: make(map[string]float64, len(providerIDs)),
		Budget:  t.budgetStatusLocked(),
	}
	for _, providerID := range providerIDs {
		summary.Daily[providerID] = t.dailyCosts[fmt.Sprintf("%s:%s", providerID, t.today())]
		summary.Monthly[providerID] = t.monthlyCosts[fmt.Sprintf("%s:%s", providerID, t.month())]
	}
	return summary
}
