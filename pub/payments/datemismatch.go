package payments

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

// checkDateMismatch verifies a payment's period overlaps at least one absence
// period on its claim. A payment the claims system issued outside any
// approved absence span must not be disbursed.
func checkDateMismatch(ctx context.Context, repo models.Repository, payment models.Payment) (*models.ValidationIssue, error) {
	periods, err := repo.GetAbsencePeriodsForClaim(ctx, payment.ClaimID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load absence periods for claim %d", payment.ClaimID)
	}

	for _, period := range periods {
		if !payment.PeriodStart.After(period.PeriodEnd) && !payment.PeriodEnd.Before(period.PeriodStart) {
			return nil, nil
		}
	}

	return &models.ValidationIssue{
		Type: "payment_date_mismatch",
		Details: "payment period " + payment.PeriodStart.Format("2006-01-02") + ".." +
			payment.PeriodEnd.Format("2006-01-02") + " does not overlap an absence period on its claim",
	}, nil
}
