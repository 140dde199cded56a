package payments

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

func TestAuditSamplerEveryNth(t *testing.T) {
	sampler := newAuditSampler(3)

	var diverted []uint
	for id := uint(1); id <= 10; id++ {
		if sampler.sample(models.Payment{ID: id}) {
			diverted = append(diverted, id)
		}
	}

	assert.Equal(t, []uint{3, 6, 9}, diverted)
	assert.Len(t, sampler.sampled, 3)
}

func TestAuditSamplerDisabled(t *testing.T) {
	sampler := newAuditSampler(0)
	assert.False(t, sampler.sample(models.Payment{ID: 1}))
	assert.Empty(t, sampler.sampled)
}

func TestWriteAuditReport(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2021, 2, 1, 8, 30, 0, 0, time.UTC)

	sampled := []models.Payment{{
		ID: 1, EmployeeID: 42,
		TransactionType:    models.TransactionTypeStandard,
		Amount:             money("893.73"),
		PeriodStart:        day(2021, time.January, 3),
		PeriodEnd:          day(2021, time.January, 9),
		DisbursementMethod: models.DisbursementMethodACH,
		FineosPeiCValue:    "7326",
		FineosPeiIValue:    "249",
	}}

	location, err := writeAuditReport(context.Background(), &files.LocalFileHandler{}, dir, now, sampled)
	require.NoError(t, err)
	assert.Contains(t, location, "2021-02-01-08-30-00-payment-audit-report.csv")

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(auditReportHeader, ","), lines[0])
	assert.Equal(t, "7326,249,42,893.73,2021-01-03,2021-01-09,Elec Funds Transfer,Standard payment by Elec Funds Transfer", lines[1])
}

func TestCheckDateMismatch(t *testing.T) {
	ctx := context.Background()

	payment := models.Payment{
		ID: 1, ClaimID: 20,
		PeriodStart: day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}

	repo := &models.MockRepository{}
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(20)).Return([]models.AbsencePeriod{
		{ClaimID: 20, PeriodStart: day(2021, time.January, 8), PeriodEnd: day(2021, time.February, 1)},
	}, nil)

	issue, err := checkDateMismatch(ctx, repo, payment)
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestCheckDateMismatchNoOverlap(t *testing.T) {
	ctx := context.Background()

	payment := models.Payment{
		ID: 1, ClaimID: 21,
		PeriodStart: day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9),
	}

	repo := &models.MockRepository{}
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(21)).Return([]models.AbsencePeriod{
		{ClaimID: 21, PeriodStart: day(2021, time.February, 7), PeriodEnd: day(2021, time.March, 1)},
	}, nil)

	issue, err := checkDateMismatch(ctx, repo, payment)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, "payment_date_mismatch", issue.Type)
	assert.Contains(t, issue.Details, "2021-01-03")
}

func TestCheckDateMismatchNoPeriods(t *testing.T) {
	ctx := context.Background()

	repo := &models.MockRepository{}
	repo.On("GetAbsencePeriodsForClaim", ctx, uint(22)).Return(nil, nil)

	issue, err := checkDateMismatch(ctx, repo, models.Payment{ID: 1, ClaimID: 22,
		PeriodStart: day(2021, time.January, 3), PeriodEnd: day(2021, time.January, 9)})
	require.NoError(t, err)
	assert.NotNil(t, issue)
}
