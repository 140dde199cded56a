package payments

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

// auditSampler diverts every Nth cap-passing payment to the audit report.
// Payments arrive in the processor's stable order, so the sample is
// deterministic for a given input set.
type auditSampler struct {
	interval int
	seen     int
	sampled  []models.Payment
}

func newAuditSampler(interval int) *auditSampler {
	return &auditSampler{interval: interval}
}

// sample reports whether this payment is diverted for audit.
func (s *auditSampler) sample(payment models.Payment) bool {
	if s.interval <= 0 {
		return false
	}
	s.seen++
	if s.seen%s.interval != 0 {
		return false
	}
	s.sampled = append(s.sampled, payment)
	return true
}

var auditReportHeader = []string{
	"pei_C_value", "pei_I_value", "employee_id", "amount",
	"period_start_date", "period_end_date", "payment_method", "scenario",
}

// writeAuditReport serializes the sampled payments and uploads the report,
// returning its final location.
func writeAuditReport(ctx context.Context, handler files.FileHandler, dir string,
	now time.Time, sampled []models.Payment) (string, error) {

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(auditReportHeader); err != nil {
		return "", errors.Wrap(err, "could not write audit report header")
	}
	for _, payment := range sampled {
		record := []string{
			payment.FineosPeiCValue,
			payment.FineosPeiIValue,
			strconv.FormatUint(uint64(payment.EmployeeID), 10),
			payment.Amount.StringFixed(2),
			payment.PeriodStart.Format(constants.ExtractDateFormat),
			payment.PeriodEnd.Format(constants.ExtractDateFormat),
			payment.DisbursementMethod.Description,
			describeScenario(payment),
		}
		if err := w.Write(record); err != nil {
			return "", errors.Wrap(err, "could not write audit report row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, "could not serialize audit report")
	}

	name := now.Format(constants.ExtractTimestampFormat) + "-payment-audit-report.csv"
	return handler.WriteFile(ctx, dir, name, buf.Bytes())
}

// describeScenario computes the reviewer-facing descriptor for a sampled
// payment.
func describeScenario(payment models.Payment) string {
	scenario := payment.TransactionType.Description + " payment by " + payment.DisbursementMethod.Description
	if payment.Amount.IsNegative() {
		scenario += " (negative amount)"
	}
	return scenario
}
