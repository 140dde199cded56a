package extracts

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/statelog"
)

// Claims-system values as they appear in extract rows.
const (
	paymentMethodACH   = "Elec Funds Transfer"
	paymentMethodCheck = "Check"
)

var eventTypeTransactions = map[string]models.TransactionType{
	"PaymentOut":              models.TransactionTypeStandard,
	"PaymentOut Cancellation": models.TransactionTypeCancellation,
	"Overpayment":             models.TransactionTypeOverpayment,
	"EmployerReimbursement":   models.TransactionTypeEmployerReimbursement,
	"AdHoc":                   models.TransactionTypeAdhoc,
}

// convertStaged turns the run's staged rows into domain records: employees,
// claims, absence periods, EFT registrations, and payments landing in the
// staged ledger state. Bad rows become pub_errors rows, never run failures.
// Runs inside the group transaction; returns the number of payments created.
func convertStaged(ctx context.Context, repo models.Repository, logger logrus.FieldLogger,
	extractionDate time.Time, runID uint) (int, error) {

	if err := convertClaimants(ctx, repo, logger, runID); err != nil {
		return 0, err
	}
	if err := convertRequestedAbsences(ctx, repo, runID); err != nil {
		return 0, err
	}
	return convertPayments(ctx, repo, logger, extractionDate, runID)
}

func convertClaimants(ctx context.Context, repo models.Repository, logger logrus.FieldLogger, runID uint) error {
	claimants, err := repo.GetStagedClaimants(ctx, runID)
	if err != nil {
		return errors.Wrap(err, "could not read staged claimants")
	}

	for _, c := range claimants {
		if c.FineosCustomerNumber == "" {
			if err := stagingError(ctx, repo, c.ReferenceFileID, runID, "claimant_missing_customer_number",
				"claimant row has no customer number", int(c.ID)); err != nil {
				return err
			}
			continue
		}

		employeeID, err := repo.UpsertEmployee(ctx, models.Employee{
			FineosCustomerNumber: c.FineosCustomerNumber,
			FirstName:            c.FirstName,
			LastName:             c.LastName,
		})
		if err != nil {
			return errors.Wrapf(err, "could not upsert employee %s", c.FineosCustomerNumber)
		}

		if c.AbsenceCaseNumber != "" {
			if _, err := repo.UpsertClaim(ctx, models.Claim{
				EmployeeID:      employeeID,
				FineosAbsenceID: c.AbsenceCaseNumber,
			}); err != nil {
				return errors.Wrapf(err, "could not upsert claim %s", c.AbsenceCaseNumber)
			}
		}

		if c.PaymentMethod == paymentMethodACH && c.RoutingNumber != "" && c.AccountNumber != "" {
			if err := registerEft(ctx, repo, c, employeeID, runID); err != nil {
				return err
			}
		}
	}

	logger.Infof("Converted %d staged claimant rows.", len(claimants))
	return nil
}

// registerEft creates a pending prenote registration for a bank account the
// engine has not seen before. A known account is left alone regardless of its
// prenote progress.
func registerEft(ctx context.Context, repo models.Repository, c models.StagedClaimant, employeeID uint, runID uint) error {
	existing, err := repo.GetPubEftForEmployeeAccount(ctx, employeeID, c.RoutingNumber, c.AccountNumber)
	if err != nil {
		return errors.Wrap(err, "could not look up pub_eft")
	}
	if existing != nil {
		return nil
	}

	pubIndividualID, err := repo.NextPubIndividualID(ctx)
	if err != nil {
		return errors.Wrap(err, "could not draw pub individual id")
	}

	eftID, err := repo.UpsertPubEft(ctx, models.PubEft{
		EmployeeID:      employeeID,
		RoutingNumber:   c.RoutingNumber,
		AccountNumber:   c.AccountNumber,
		AccountType:     c.AccountType,
		PrenoteState:    models.PrenoteStatePendingPrePub,
		PubIndividualID: pubIndividualID,
	})
	if err != nil {
		return errors.Wrap(err, "could not create pub_eft")
	}

	_, err = statelog.AppendTerminalState(ctx, repo, models.EntityTypePubEft, eftID,
		models.FlowEft, models.StateEftPendingPrePub,
		models.BuildOutcome("EFT staged for prenote"), runID)
	return err
}

func convertRequestedAbsences(ctx context.Context, repo models.Repository, runID uint) error {
	absences, err := repo.GetStagedRequestedAbsences(ctx, runID)
	if err != nil {
		return errors.Wrap(err, "could not read staged requested absences")
	}

	for _, a := range absences {
		claim, err := repo.GetClaimByAbsenceID(ctx, a.ClaimAbsenceID)
		if err != nil {
			return errors.Wrapf(err, "could not look up claim %s", a.ClaimAbsenceID)
		}
		if claim == nil {
			if err := stagingError(ctx, repo, a.ReferenceFileID, runID, "absence_unknown_claim",
				fmt.Sprintf("requested absence references unknown claim %s", a.ClaimAbsenceID), int(a.ID)); err != nil {
				return err
			}
			continue
		}

		start, errStart := time.Parse(constants.ExtractDateFormat, a.PeriodStart)
		end, errEnd := time.Parse(constants.ExtractDateFormat, a.PeriodEnd)
		if errStart != nil || errEnd != nil {
			if err := stagingError(ctx, repo, a.ReferenceFileID, runID, "absence_bad_period",
				fmt.Sprintf("requested absence for claim %s has unparseable period dates", a.ClaimAbsenceID), int(a.ID)); err != nil {
				return err
			}
			continue
		}

		if err := repo.UpsertAbsencePeriod(ctx, models.AbsencePeriod{
			ClaimID:       claim.ID,
			AbsenceCaseID: a.AbsenceCaseNumber,
			PeriodStart:   start,
			PeriodEnd:     end,
		}); err != nil {
			return errors.Wrapf(err, "could not upsert absence period for claim %s", a.ClaimAbsenceID)
		}
	}

	return nil
}

func convertPayments(ctx context.Context, repo models.Repository, logger logrus.FieldLogger,
	extractionDate time.Time, runID uint) (int, error) {

	claimDetails, err := repo.GetStagedClaimDetails(ctx, runID)
	if err != nil {
		return 0, errors.Wrap(err, "could not read staged claim details")
	}
	absenceCaseByPei := make(map[string]string, len(claimDetails))
	for _, d := range claimDetails {
		absenceCaseByPei[peiKey(d.CValue, d.IValue)] = d.AbsenceCaseNumber
	}

	stagedDetails, err := repo.GetStagedPaymentDetails(ctx, runID)
	if err != nil {
		return 0, errors.Wrap(err, "could not read staged payment details")
	}
	detailsByPei := make(map[string][]models.StagedPaymentDetail)
	for _, d := range stagedDetails {
		key := peiKey(d.CValue, d.IValue)
		detailsByPei[key] = append(detailsByPei[key], d)
	}

	lines, err := repo.GetStagedPaymentLines(ctx, runID)
	if err != nil {
		return 0, errors.Wrap(err, "could not read staged payment lines")
	}

	created := 0
	for _, line := range lines {
		payment, issue, err := buildPayment(ctx, repo, line, absenceCaseByPei, extractionDate, runID)
		if err != nil {
			return 0, err
		}
		if issue != "" {
			if err := stagingError(ctx, repo, line.ReferenceFileID, runID, "payment_conversion",
				issue, int(line.ID)); err != nil {
				return 0, err
			}
			continue
		}

		paymentID, err := repo.CreatePayment(ctx, *payment)
		if err != nil {
			return 0, errors.Wrapf(err, "could not create payment %s/%s", line.CValue, line.IValue)
		}

		for _, d := range detailsByPei[peiKey(line.CValue, line.IValue)] {
			detail, issue := buildPaymentDetail(paymentID, d)
			if issue != "" {
				if err := stagingError(ctx, repo, d.ReferenceFileID, runID, "payment_detail_conversion",
					issue, int(d.ID)); err != nil {
					return 0, err
				}
				continue
			}
			if _, err := repo.CreatePaymentDetail(ctx, detail); err != nil {
				return 0, errors.Wrapf(err, "could not create payment detail for payment %d", paymentID)
			}
		}

		if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, paymentID,
			models.FlowPayment, models.StatePaymentStaged,
			models.BuildOutcome("Payment staged from extract"), runID); err != nil {
			return 0, err
		}
		created++
	}

	logger.Infof("Converted %d of %d staged payment lines.", created, len(lines))
	return created, nil
}

// buildPayment validates one staged payment line. A non-empty issue string is
// a business failure for that row; an error return aborts the run.
func buildPayment(ctx context.Context, repo models.Repository, line models.StagedPaymentLine,
	absenceCaseByPei map[string]string, extractionDate time.Time, runID uint) (*models.Payment, string, error) {

	absenceCase, ok := absenceCaseByPei[peiKey(line.CValue, line.IValue)]
	if !ok || absenceCase == "" {
		return nil, fmt.Sprintf("payment %s/%s has no claim detail row", line.CValue, line.IValue), nil
	}

	claim, err := repo.GetClaimByAbsenceID(ctx, absenceCase)
	if err != nil {
		return nil, "", errors.Wrapf(err, "could not look up claim %s", absenceCase)
	}
	if claim == nil {
		return nil, fmt.Sprintf("payment %s/%s references unknown claim %s", line.CValue, line.IValue, absenceCase), nil
	}

	amount, err := decimal.NewFromString(line.Amount)
	if err != nil {
		return nil, fmt.Sprintf("payment %s/%s has unparseable amount %q", line.CValue, line.IValue, line.Amount), nil
	}

	periodStart, errStart := time.Parse(constants.ExtractDateFormat, line.PeriodStart)
	periodEnd, errEnd := time.Parse(constants.ExtractDateFormat, line.PeriodEnd)
	if errStart != nil || errEnd != nil || periodEnd.Before(periodStart) {
		return nil, fmt.Sprintf("payment %s/%s has invalid period %q..%q", line.CValue, line.IValue, line.PeriodStart, line.PeriodEnd), nil
	}

	transactionType, ok := eventTypeTransactions[line.EventType]
	if !ok {
		return nil, fmt.Sprintf("payment %s/%s has unknown event type %q", line.CValue, line.IValue, line.EventType), nil
	}
	if transactionType == models.TransactionTypeStandard && amount.IsZero() {
		transactionType = models.TransactionTypeZeroDollar
	}

	var method models.DisbursementMethod
	switch line.PaymentMethod {
	case paymentMethodACH:
		method = models.DisbursementMethodACH
	case paymentMethodCheck:
		method = models.DisbursementMethodCheck
	default:
		return nil, fmt.Sprintf("payment %s/%s has unknown payment method %q", line.CValue, line.IValue, line.PaymentMethod), nil
	}

	payment := &models.Payment{
		ClaimID:            claim.ID,
		EmployeeID:         claim.EmployeeID,
		TransactionType:    transactionType,
		Amount:             amount,
		PeriodStart:        periodStart,
		PeriodEnd:          periodEnd,
		DisbursementMethod: method,
		FineosPeiCValue:    line.CValue,
		FineosPeiIValue:    line.IValue,
		ExtractionDate:     extractionDate,
		ImportRunID:        runID,
	}

	// Check payments correlate via bank-assigned check numbers; only ACH
	// payments carry a pub individual id.
	if method == models.DisbursementMethodACH {
		pubIndividualID, err := repo.NextPubIndividualID(ctx)
		if err != nil {
			return nil, "", errors.Wrap(err, "could not draw pub individual id")
		}
		payment.PubIndividualID = pubIndividualID
	}

	return payment, "", nil
}

func buildPaymentDetail(paymentID uint, d models.StagedPaymentDetail) (models.PaymentDetail, string) {
	amount, errAmount := decimal.NewFromString(d.Amount)
	net, errNet := decimal.NewFromString(d.BusinessNetAmount)
	start, errStart := time.Parse(constants.ExtractDateFormat, d.PeriodStart)
	end, errEnd := time.Parse(constants.ExtractDateFormat, d.PeriodEnd)
	if errAmount != nil || errNet != nil || errStart != nil || errEnd != nil {
		return models.PaymentDetail{}, fmt.Sprintf("payment detail %s/%s has unparseable fields", d.CValue, d.IValue)
	}

	return models.PaymentDetail{
		PaymentID:         paymentID,
		PeriodStart:       start,
		PeriodEnd:         end,
		Amount:            amount,
		BusinessNetAmount: net,
	}, ""
}

func stagingError(ctx context.Context, repo models.Repository, referenceFileID, runID uint,
	errorType, message string, lineNumber int) error {
	_, err := repo.CreatePubError(ctx, models.PubError{
		ErrorType:       errorType,
		Message:         message,
		LineNumber:      lineNumber,
		ReferenceFileID: referenceFileID,
		ImportRunID:     runID,
	})
	return errors.Wrap(err, "could not record pub error")
}

func peiKey(c, i string) string {
	return c + "," + i
}
