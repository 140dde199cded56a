package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func capProcessor(maximums ...models.MaximumWeeklyBenefitAmount) (*CapProcessor, *test.Hook) {
	logger, hook := test.NewNullLogger()
	if len(maximums) == 0 {
		maximums = []models.MaximumWeeklyBenefitAmount{
			{EffectiveDate: day(2020, time.January, 1), Amount: money("850.00")},
		}
	}
	return &CapProcessor{Logger: logger, Cache: NewMaximumWeeklyBenefitCache(maximums)}, hook
}

func singleDetail(paymentID uint, start, end time.Time, amount string) []models.PaymentDetail {
	return []models.PaymentDetail{{
		ID: paymentID * 10, PaymentID: paymentID,
		PeriodStart: start, PeriodEnd: end,
		Amount: money(amount), BusinessNetAmount: money(amount),
	}}
}

func TestMaximumWeeklyBenefitCache(t *testing.T) {
	cache := NewMaximumWeeklyBenefitCache([]models.MaximumWeeklyBenefitAmount{
		{EffectiveDate: day(2021, time.October, 1), Amount: money("1084.31")},
		{EffectiveDate: day(2020, time.January, 1), Amount: money("850.00")},
	})

	amount, ok := cache.MaximumForDate(day(2021, time.March, 15))
	require.True(t, ok)
	assert.True(t, money("850.00").Equal(amount))

	amount, ok = cache.MaximumForDate(day(2021, time.October, 1))
	require.True(t, ok)
	assert.True(t, money("1084.31").Equal(amount))

	_, ok = cache.MaximumForDate(day(2019, time.June, 1))
	assert.False(t, ok)
}

func TestSundaysOverlapping(t *testing.T) {
	// 2021-01-03 is a Sunday.
	sundays := sundaysOverlapping(day(2021, time.January, 5), day(2021, time.January, 20))
	require.Len(t, sundays, 3)
	assert.Equal(t, day(2021, time.January, 3), sundays[0])
	assert.Equal(t, day(2021, time.January, 10), sundays[1])
	assert.Equal(t, day(2021, time.January, 17), sundays[2])

	assert.Equal(t, day(2021, time.January, 3), sundayOnOrBefore(day(2021, time.January, 3)))
	assert.Equal(t, day(2021, time.January, 3), sundayOnOrBefore(day(2021, time.January, 9)))
}

// A second absence case pushing window 2 from $840 to $860 against an $850
// maximum makes the payment unpayable, with only window 2 recorded against
// it.
func TestEvaluateFourWindowScenario(t *testing.T) {
	ctx := context.Background()
	processor, _ := capProcessor()

	historical := models.Payment{
		ID: 100, ClaimID: 1, EmployeeID: 1,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 10), PeriodEnd: day(2021, time.January, 16),
	}
	current := models.Payment{
		ID: 200, ClaimID: 2, EmployeeID: 1,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 30),
		PubIndividualID: 7, ImportRunID: 5,
	}

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(1), models.FlowPayment, priorCommitmentStates).
		Return([]models.Payment{historical}, nil)
	repo.On("GetPaymentDetails", ctx, uint(100)).
		Return(singleDetail(100, day(2021, time.January, 10), day(2021, time.January, 16), "840.00"), nil)
	repo.On("GetPaymentDetails", ctx, uint(200)).Return([]models.PaymentDetail{
		{PaymentID: 200, PeriodStart: day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
			BusinessNetAmount: money("20.00")},
		{PaymentID: 200, PeriodStart: day(2021, time.January, 10), PeriodEnd: day(2021, time.January, 16),
			BusinessNetAmount: money("20.00")},
		{PaymentID: 200, PeriodStart: day(2021, time.January, 17), PeriodEnd: day(2021, time.January, 23),
			BusinessNetAmount: money("20.00")},
		{PaymentID: 200, PeriodStart: day(2021, time.January, 24), PeriodEnd: day(2021, time.January, 30),
			BusinessNetAmount: money("20.00")},
	}, nil)
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(2)).Return([]models.AbsencePeriod{
		{ClaimID: 2, AbsenceCaseID: "NTN-2", PeriodStart: day(2021, time.January, 1), PeriodEnd: day(2021, time.February, 28)},
	}, nil)

	decisions, err := processor.Evaluate(ctx, repo, []models.Payment{current})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	decision := decisions[0]
	assert.False(t, decision.Payable)
	require.Len(t, decision.Issues, 1)
	assert.Equal(t, "weekly_maximum_exceeded", decision.Issues[0].Type)
	assert.Contains(t, decision.Issues[0].Details, "2021-01-10")
	assert.Contains(t, decision.Issues[0].Details, "860.00")
}

// A window funded by a single absence case is never flagged, regardless of
// amount.
func TestEvaluateSingleCaseWindowExempt(t *testing.T) {
	ctx := context.Background()
	processor, _ := capProcessor()

	first := models.Payment{
		ID: 201, ClaimID: 3, EmployeeID: 2,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
		ImportRunID:     5, PubIndividualID: 1,
	}
	second := first
	second.ID = 202
	second.PubIndividualID = 2

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(2), models.FlowPayment, priorCommitmentStates).
		Return(nil, nil)
	repo.On("GetPaymentDetails", ctx, uint(201)).
		Return(singleDetail(201, first.PeriodStart, first.PeriodEnd, "800.00"), nil)
	repo.On("GetPaymentDetails", ctx, uint(202)).
		Return(singleDetail(202, second.PeriodStart, second.PeriodEnd, "800.00"), nil)
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(3)).Return([]models.AbsencePeriod{
		{ClaimID: 3, PeriodStart: day(2021, time.January, 1), PeriodEnd: day(2021, time.March, 1)},
	}, nil)

	decisions, err := processor.Evaluate(ctx, repo, []models.Payment{first, second})
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.True(t, decisions[0].Payable)
	assert.True(t, decisions[1].Payable)
}

// Across two absence cases the committed total never exceeds the maximum:
// the first payment in stable order commits, the second is rejected.
func TestEvaluateCapInvariantAcrossClaims(t *testing.T) {
	ctx := context.Background()
	processor, _ := capProcessor()

	first := models.Payment{
		ID: 301, ClaimID: 4, EmployeeID: 3,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
		ImportRunID:     5, PubIndividualID: 1,
	}
	second := models.Payment{
		ID: 302, ClaimID: 5, EmployeeID: 3,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
		ImportRunID:     5, PubIndividualID: 2,
	}

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(3), models.FlowPayment, priorCommitmentStates).
		Return(nil, nil)
	repo.On("GetPaymentDetails", ctx, uint(301)).
		Return(singleDetail(301, first.PeriodStart, first.PeriodEnd, "500.00"), nil)
	repo.On("GetPaymentDetails", ctx, uint(302)).
		Return(singleDetail(302, second.PeriodStart, second.PeriodEnd, "400.00"), nil)
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(4)).Return([]models.AbsencePeriod{
		{ClaimID: 4, PeriodStart: day(2021, time.January, 1), PeriodEnd: day(2021, time.March, 1)},
	}, nil)
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(5)).Return([]models.AbsencePeriod{
		{ClaimID: 5, PeriodStart: day(2021, time.January, 1), PeriodEnd: day(2021, time.March, 1)},
	}, nil)

	decisions, err := processor.Evaluate(ctx, repo, []models.Payment{second, first})
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	// Stable order puts the lower pub individual id first.
	assert.Equal(t, uint(301), decisions[0].Payment.ID)
	assert.True(t, decisions[0].Payable)
	assert.Equal(t, uint(302), decisions[1].Payment.ID)
	assert.False(t, decisions[1].Payable)
	require.Len(t, decisions[1].Issues, 1)
	assert.Contains(t, decisions[1].Issues[0].Details, "900.00")
}

// Historical overpayments reduce prior commitments, freeing room under the
// cap.
func TestEvaluateOverpaymentCountsNegative(t *testing.T) {
	ctx := context.Background()
	processor, _ := capProcessor()

	paid := models.Payment{
		ID: 400, ClaimID: 6, EmployeeID: 4,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}
	overpayment := models.Payment{
		ID: 401, ClaimID: 6, EmployeeID: 4,
		TransactionType: models.TransactionTypeOverpayment,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}
	current := models.Payment{
		ID: 402, ClaimID: 7, EmployeeID: 4,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(4), models.FlowPayment, priorCommitmentStates).
		Return([]models.Payment{paid, overpayment}, nil)
	repo.On("GetPaymentDetails", ctx, uint(400)).
		Return(singleDetail(400, paid.PeriodStart, paid.PeriodEnd, "850.00"), nil)
	repo.On("GetPaymentDetails", ctx, uint(401)).
		Return(singleDetail(401, overpayment.PeriodStart, overpayment.PeriodEnd, "100.00"), nil)
	repo.On("GetPaymentDetails", ctx, uint(402)).
		Return(singleDetail(402, current.PeriodStart, current.PeriodEnd, "100.00"), nil)
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(7)).Return([]models.AbsencePeriod{
		{ClaimID: 7, PeriodStart: day(2021, time.January, 1), PeriodEnd: day(2021, time.March, 1)},
	}, nil)

	// Prior commitments net to 750, so another 100 fits exactly.
	decisions, err := processor.Evaluate(ctx, repo, []models.Payment{current})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Payable)
}

func TestEvaluateAdhocExcluded(t *testing.T) {
	ctx := context.Background()
	processor, _ := capProcessor()

	adhoc := models.Payment{
		ID: 500, ClaimID: 8, EmployeeID: 5,
		TransactionType: models.TransactionTypeAdhoc,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(5), models.FlowPayment, priorCommitmentStates).
		Return(nil, nil)

	decisions, err := processor.Evaluate(ctx, repo, []models.Payment{adhoc})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Payable)
	repo.AssertNotCalled(t, "GetPaymentDetails", mock.Anything, mock.Anything)
}

func TestEvaluateCurrentPaymentWithoutDetailsIsHardError(t *testing.T) {
	ctx := context.Background()
	processor, _ := capProcessor()

	current := models.Payment{
		ID: 600, ClaimID: 9, EmployeeID: 6,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(6), models.FlowPayment, priorCommitmentStates).
		Return(nil, nil)
	repo.On("GetPaymentDetails", ctx, uint(600)).Return(nil, nil)

	_, err := processor.Evaluate(ctx, repo, []models.Payment{current})
	var missing *ers.MissingPaymentDetails
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, uint(600), missing.PaymentID)
}

func TestEvaluateHistoricalPaymentWithoutDetailsIsSkipped(t *testing.T) {
	ctx := context.Background()
	processor, hook := capProcessor()

	historical := models.Payment{
		ID: 700, ClaimID: 10, EmployeeID: 7,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}
	current := models.Payment{
		ID: 701, ClaimID: 11, EmployeeID: 7,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(7), models.FlowPayment, priorCommitmentStates).
		Return([]models.Payment{historical}, nil)
	repo.On("GetPaymentDetails", ctx, uint(700)).Return(nil, nil)
	repo.On("GetPaymentDetails", ctx, uint(701)).
		Return(singleDetail(701, current.PeriodStart, current.PeriodEnd, "100.00"), nil)
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(11)).Return([]models.AbsencePeriod{
		{ClaimID: 11, PeriodStart: day(2021, time.January, 1), PeriodEnd: day(2021, time.March, 1)},
	}, nil)

	decisions, err := processor.Evaluate(ctx, repo, []models.Payment{current})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Payable)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

// The lookback date comes from the claim's earliest absence period, not the
// payment's own period.
func TestEvaluateLookbackUsesAbsencePeriodStart(t *testing.T) {
	ctx := context.Background()
	processor, hook := capProcessor(
		models.MaximumWeeklyBenefitAmount{EffectiveDate: day(2020, time.January, 1), Amount: money("850.00")},
		models.MaximumWeeklyBenefitAmount{EffectiveDate: day(2021, time.October, 1), Amount: money("1084.31")},
	)

	historical := models.Payment{
		ID: 800, ClaimID: 12, EmployeeID: 8,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.November, 7), PeriodEnd: day(2021, time.November, 13),
	}
	// Paid in November but the absence began in September, so the older
	// $850 maximum applies and $900 total overdraws it.
	current := models.Payment{
		ID: 801, ClaimID: 13, EmployeeID: 8,
		TransactionType: models.TransactionTypeStandard,
		PeriodStart:     day(2021, time.November, 7), PeriodEnd: day(2021, time.November, 13),
	}

	repo := &models.MockRepository{}
	repo.On("GetEmployeePaymentsInStates", ctx, uint(8), models.FlowPayment, priorCommitmentStates).
		Return([]models.Payment{historical}, nil)
	repo.On("GetPaymentDetails", ctx, uint(800)).
		Return(singleDetail(800, historical.PeriodStart, historical.PeriodEnd, "700.00"), nil)
	repo.On("GetPaymentDetails", ctx, uint(801)).
		Return(singleDetail(801, current.PeriodStart, current.PeriodEnd, "200.00"), nil)
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(13)).Return([]models.AbsencePeriod{
		{ClaimID: 13, PeriodStart: day(2021, time.September, 5), PeriodEnd: day(2021, time.December, 31)},
	}, nil)

	decisions, err := processor.Evaluate(ctx, repo, []models.Payment{current})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Payable)
	require.Len(t, decisions[0].Issues, 1)
	assert.Contains(t, decisions[0].Issues[0].Details, "850.00")

	// The divergence between the two candidate statutory rows is surfaced.
	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}
