// Package payments applies the statutory rule stages a staged payment must
// clear before it may be disbursed: the employee-wide weekly benefit cap,
// absence-period date mismatch detection, and audit sampling.
package payments

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

// MaximumWeeklyBenefitCache holds the effective-dated statutory maximums for
// one run. Loaded once per run and handed to the processor; nothing is
// memoized across runs.
type MaximumWeeklyBenefitCache struct {
	amounts []models.MaximumWeeklyBenefitAmount
}

func NewMaximumWeeklyBenefitCache(rows []models.MaximumWeeklyBenefitAmount) *MaximumWeeklyBenefitCache {
	amounts := make([]models.MaximumWeeklyBenefitAmount, len(rows))
	copy(amounts, rows)
	sort.Slice(amounts, func(i, j int) bool {
		return amounts[i].EffectiveDate.Before(amounts[j].EffectiveDate)
	})
	return &MaximumWeeklyBenefitCache{amounts: amounts}
}

// MaximumForDate returns the most recent statutory value whose effective date
// is on or before the given date.
func (c *MaximumWeeklyBenefitCache) MaximumForDate(date time.Time) (decimal.Decimal, bool) {
	for i := len(c.amounts) - 1; i >= 0; i-- {
		if !c.amounts[i].EffectiveDate.After(date) {
			return c.amounts[i].Amount, true
		}
	}
	return decimal.Decimal{}, false
}

// CapProcessor enforces the maximum weekly benefit across all of one
// employee's claims. The claims system runs its own per-claim check; this one
// is the stricter employee-wide view, so weekly windows funded by a single
// absence case are exempt.
type CapProcessor struct {
	Logger logrus.FieldLogger
	Cache  *MaximumWeeklyBenefitCache
}

// CapDecision tags one payment as payable or not. An unpayable payment
// carries one validation issue per weekly window it would overdraw.
type CapDecision struct {
	Payment models.Payment
	Payable bool
	Issues  []models.ValidationIssue
}

// Ledger states whose payments count as prior commitments against the cap.
var priorCommitmentStates = []models.EndState{
	models.StatePaymentSampledForAudit,
	models.StatePaymentReadyForPub,
	models.StatePaymentSentToPub,
	models.StatePaymentComplete,
}

// payPeriodGroup is one Sunday-aligned 7-day window, rebuilt from scratch
// each run. Never persisted.
type payPeriodGroup struct {
	start     time.Time
	committed decimal.Decimal
	claimIDs  map[uint]struct{}
}

// Evaluate decides payability for every current payment, in a stable order
// (period start, then import run, then bank correlation id) so allocation
// across shared windows is reproducible. Payable payments commit into their
// windows before the next payment is evaluated.
func (p *CapProcessor) Evaluate(ctx context.Context, repo models.Repository, current []models.Payment) ([]CapDecision, error) {
	ordered := make([]models.Payment, len(current))
	copy(ordered, current)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		if a.ImportRunID != b.ImportRunID {
			return a.ImportRunID < b.ImportRunID
		}
		return a.PubIndividualID < b.PubIndividualID
	})

	byEmployee := make(map[uint][]models.Payment)
	var employeeOrder []uint
	for _, payment := range ordered {
		if _, seen := byEmployee[payment.EmployeeID]; !seen {
			employeeOrder = append(employeeOrder, payment.EmployeeID)
		}
		byEmployee[payment.EmployeeID] = append(byEmployee[payment.EmployeeID], payment)
	}

	decisionByPayment := make(map[uint]CapDecision, len(ordered))
	for _, employeeID := range employeeOrder {
		decisions, err := p.evaluateEmployee(ctx, repo, employeeID, byEmployee[employeeID])
		if err != nil {
			return nil, err
		}
		for _, d := range decisions {
			decisionByPayment[d.Payment.ID] = d
		}
	}

	// Callers see decisions in the stable evaluation order.
	out := make([]CapDecision, 0, len(ordered))
	for _, payment := range ordered {
		out = append(out, decisionByPayment[payment.ID])
	}
	return out, nil
}

func (p *CapProcessor) evaluateEmployee(ctx context.Context, repo models.Repository,
	employeeID uint, current []models.Payment) ([]CapDecision, error) {

	windows := make(map[time.Time]*payPeriodGroup)
	lookback := newLookbackCache(repo)

	currentIDs := make(map[uint]struct{}, len(current))
	for _, payment := range current {
		currentIDs[payment.ID] = struct{}{}
	}

	// Historical payments are immutable background load. A historical payment
	// with no details cannot be reconstructed; it is skipped with a warning.
	history, err := repo.GetEmployeePaymentsInStates(ctx, employeeID, models.FlowPayment, priorCommitmentStates)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load payment history for employee %d", employeeID)
	}
	for _, payment := range history {
		if _, isCurrent := currentIDs[payment.ID]; isCurrent {
			continue
		}
		if payment.TransactionType == models.TransactionTypeAdhoc {
			continue
		}

		allocations, err := p.allocate(ctx, repo, payment)
		if err != nil {
			return nil, err
		}
		if allocations == nil {
			p.Logger.Warnf("Historical payment %d has no payment details, skipping it in the cap background load.", payment.ID)
			continue
		}
		commit(windows, payment, allocations)
	}

	decisions := make([]CapDecision, 0, len(current))
	for _, payment := range current {
		if payment.TransactionType == models.TransactionTypeAdhoc {
			decisions = append(decisions, CapDecision{Payment: payment, Payable: true})
			continue
		}

		allocations, err := p.allocate(ctx, repo, payment)
		if err != nil {
			return nil, err
		}
		if allocations == nil {
			// Mandatory for the entity being actively processed.
			return nil, &ers.MissingPaymentDetails{PaymentID: payment.ID}
		}

		maximum, err := p.maximumFor(ctx, lookback, payment)
		if err != nil {
			return nil, err
		}

		var issues []models.ValidationIssue
		for _, start := range sortedWindowStarts(allocations) {
			amount := allocations[start]
			group := windows[start]

			// A window funded by a single absence case is the claims
			// system's own per-claim check to make; only windows spanning
			// two or more cases are compared here.
			if group == nil || singleCase(group, payment.ClaimID) {
				continue
			}
			committed := group.committed.Add(amount)
			if committed.GreaterThan(maximum) {
				issues = append(issues, models.ValidationIssue{
					Type: "weekly_maximum_exceeded",
					Details: "week of " + start.Format("2006-01-02") + " would pay " +
						committed.StringFixed(2) + " of the " + maximum.StringFixed(2) + " maximum",
				})
			}
		}

		if len(issues) > 0 {
			decisions = append(decisions, CapDecision{Payment: payment, Issues: issues})
			continue
		}

		commit(windows, payment, allocations)
		decisions = append(decisions, CapDecision{Payment: payment, Payable: true})
	}

	return decisions, nil
}

// allocate spreads a payment's detail amounts into every Sunday-aligned
// window each detail period falls inside. Overpayments count negative. A nil
// map means the payment has no detail rows at all.
func (p *CapProcessor) allocate(ctx context.Context, repo models.Repository, payment models.Payment) (map[time.Time]decimal.Decimal, error) {
	details, err := repo.GetPaymentDetails(ctx, payment.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load details for payment %d", payment.ID)
	}
	if len(details) == 0 {
		return nil, nil
	}

	allocations := make(map[time.Time]decimal.Decimal)
	for _, detail := range details {
		amount := detail.BusinessNetAmount
		if payment.TransactionType == models.TransactionTypeOverpayment {
			amount = amount.Abs().Neg()
		}
		for _, start := range sundaysOverlapping(detail.PeriodStart, detail.PeriodEnd) {
			allocations[start] = allocations[start].Add(amount)
		}
	}
	return allocations, nil
}

// maximumFor looks up the statutory maximum by the claim's earliest absence
// period start date. That lookback date is authoritative; when the payment's
// own period would have selected a different statutory row the divergence is
// logged for domain owners to confirm.
func (p *CapProcessor) maximumFor(ctx context.Context, lookback *lookbackCache, payment models.Payment) (decimal.Decimal, error) {
	lookbackDate, err := lookback.earliestAbsenceStart(ctx, payment.ClaimID, payment.PeriodStart)
	if err != nil {
		return decimal.Decimal{}, err
	}

	maximum, ok := p.Cache.MaximumForDate(lookbackDate)
	if !ok {
		return decimal.Decimal{}, errors.Errorf("no statutory maximum effective on or before %s for payment %d",
			lookbackDate.Format("2006-01-02"), payment.ID)
	}

	if byPeriod, ok := p.Cache.MaximumForDate(payment.PeriodStart); ok && !byPeriod.Equal(maximum) {
		p.Logger.Warnf("Payment %d period start would select statutory maximum %s instead of %s from its absence period.",
			payment.ID, byPeriod.StringFixed(2), maximum.StringFixed(2))
	}
	return maximum, nil
}

func commit(windows map[time.Time]*payPeriodGroup, payment models.Payment, allocations map[time.Time]decimal.Decimal) {
	for start, amount := range allocations {
		group := windows[start]
		if group == nil {
			group = &payPeriodGroup{start: start, claimIDs: make(map[uint]struct{})}
			windows[start] = group
		}
		group.committed = group.committed.Add(amount)
		group.claimIDs[payment.ClaimID] = struct{}{}
	}
}

func singleCase(group *payPeriodGroup, claimID uint) bool {
	if len(group.claimIDs) == 0 {
		return true
	}
	if len(group.claimIDs) > 1 {
		return false
	}
	_, only := group.claimIDs[claimID]
	return only
}

// sundaysOverlapping lists the start dates of every Sunday-aligned 7-day
// window the period touches, oldest first.
func sundaysOverlapping(start, end time.Time) []time.Time {
	var sundays []time.Time
	for s := sundayOnOrBefore(start); !s.After(end); s = s.AddDate(0, 0, 7) {
		sundays = append(sundays, s)
	}
	return sundays
}

func sundayOnOrBefore(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func sortedWindowStarts(allocations map[time.Time]decimal.Decimal) []time.Time {
	starts := make([]time.Time, 0, len(allocations))
	for start := range allocations {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return starts
}

// lookbackCache caches each claim's earliest absence period start for the
// duration of one employee's evaluation.
type lookbackCache struct {
	repo  models.Repository
	dates map[uint]time.Time
}

func newLookbackCache(repo models.Repository) *lookbackCache {
	return &lookbackCache{repo: repo, dates: make(map[uint]time.Time)}
}

func (c *lookbackCache) earliestAbsenceStart(ctx context.Context, claimID uint, fallback time.Time) (time.Time, error) {
	if date, ok := c.dates[claimID]; ok {
		return date, nil
	}

	periods, err := c.repo.GetAbsencePeriodsForClaim(ctx, claimID)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "could not load absence periods for claim %d", claimID)
	}

	date := fallback
	for i, period := range periods {
		if i == 0 || period.PeriodStart.Before(date) {
			date = period.PeriodStart
		}
	}
	c.dates[claimID] = date
	return date, nil
}
