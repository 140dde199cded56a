package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

var paymentColumns = []string{
	"id", "claim_id", "employee_id", "transaction_type_id", "amount",
	"period_start", "period_end", "disbursement_method_id", "pub_individual_id",
	"check_number", "check_status", "fineos_pei_c_value", "fineos_pei_i_value",
	"extraction_date", "import_run_id", "created_at",
}

func scanPayment(row *sql.Row) (*models.Payment, error) {
	var p models.Payment
	var transactionTypeID, disbursementMethodID int
	err := row.Scan(&p.ID, &p.ClaimID, &p.EmployeeID, &transactionTypeID, &p.Amount,
		&p.PeriodStart, &p.PeriodEnd, &disbursementMethodID, &p.PubIndividualID,
		&p.CheckNumber, &p.CheckStatus, &p.FineosPeiCValue, &p.FineosPeiIValue,
		&p.ExtractionDate, &p.ImportRunID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.TransactionType = models.TransactionTypeByID[transactionTypeID]
	p.DisbursementMethod = models.DisbursementMethodByID[disbursementMethodID]
	return &p, nil
}

func scanPayments(rows *sql.Rows) ([]models.Payment, error) {
	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		var transactionTypeID, disbursementMethodID int
		err := rows.Scan(&p.ID, &p.ClaimID, &p.EmployeeID, &transactionTypeID, &p.Amount,
			&p.PeriodStart, &p.PeriodEnd, &disbursementMethodID, &p.PubIndividualID,
			&p.CheckNumber, &p.CheckStatus, &p.FineosPeiCValue, &p.FineosPeiIValue,
			&p.ExtractionDate, &p.ImportRunID, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		p.TransactionType = models.TransactionTypeByID[transactionTypeID]
		p.DisbursementMethod = models.DisbursementMethodByID[disbursementMethodID]
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *Repository) CreatePayment(ctx context.Context, payment models.Payment) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO payments
		(claim_id, employee_id, transaction_type_id, amount, period_start, period_end,
			disbursement_method_id, pub_individual_id, fineos_pei_c_value,
			fineos_pei_i_value, extraction_date, import_run_id) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		payment.ClaimID, payment.EmployeeID, payment.TransactionType.ID, payment.Amount,
		payment.PeriodStart, payment.PeriodEnd, payment.DisbursementMethod.ID,
		payment.PubIndividualID, payment.FineosPeiCValue, payment.FineosPeiIValue,
		payment.ExtractionDate, payment.ImportRunID).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) CreatePaymentDetail(ctx context.Context, detail models.PaymentDetail) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO payment_details
		(payment_id, period_start, period_end, amount, business_net_amount) VALUES
		(%s, %s, %s, %s, %s) RETURNING id`,
		detail.PaymentID, detail.PeriodStart, detail.PeriodEnd,
		detail.Amount, detail.BusinessNetAmount).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetPaymentsByIDs(ctx context.Context, ids []uint) ([]models.Payment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(paymentColumns...)
	sb.From("payments")

	idValues := make([]interface{}, len(ids))
	for i, id := range ids {
		idValues[i] = id
	}
	sb.Where(sb.In("id", idValues...))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

func (r *Repository) GetPaymentByPubIndividualID(ctx context.Context, pubIndividualID int) (*models.Payment, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(paymentColumns...)
	sb.From("payments")
	sb.Where(sb.Equal("pub_individual_id", pubIndividualID))

	query, args := sb.Build()
	payment, err := scanPayment(r.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return payment, err
}

func (r *Repository) GetPaymentByCheckNumber(ctx context.Context, checkNumber int64) (*models.Payment, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(paymentColumns...)
	sb.From("payments")
	sb.Where(sb.Equal("check_number", checkNumber))

	query, args := sb.Build()
	payment, err := scanPayment(r.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return payment, err
}

func (r *Repository) GetPaymentDetails(ctx context.Context, paymentID uint) ([]models.PaymentDetail, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "payment_id", "period_start", "period_end", "amount", "business_net_amount")
	sb.From("payment_details")
	sb.Where(sb.Equal("payment_id", paymentID))
	sb.OrderBy("period_start")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []models.PaymentDetail
	for rows.Next() {
		var d models.PaymentDetail
		if err = rows.Scan(&d.ID, &d.PaymentID, &d.PeriodStart, &d.PeriodEnd,
			&d.Amount, &d.BusinessNetAmount); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return details, nil
}

// GetEmployeePaymentsInStates returns the employee's payments whose latest
// ledger state for the given flow is one of the provided states. The weekly
// cap processor uses this for the prior-paid background load.
func (r *Repository) GetEmployeePaymentsInStates(ctx context.Context, employeeID uint, flow models.Flow, states []models.EndState) ([]models.Payment, error) {
	if len(states) == 0 {
		return nil, nil
	}

	sb := sqlFlavor.NewSelectBuilder()
	cols := make([]string, len(paymentColumns))
	for i, c := range paymentColumns {
		cols[i] = "p." + c
	}
	sb.Select(cols...)
	sb.From("payments p")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "latest_state_logs l",
		"l.entity_type = 'payment'", "l.entity_id = p.id")

	stateIDs := make([]interface{}, len(states))
	for i, s := range states {
		stateIDs[i] = s.ID
	}
	sb.Where(
		sb.Equal("p.employee_id", employeeID),
		sb.Equal("l.flow_id", flow.ID),
		sb.In("l.end_state_id", stateIDs...),
	)
	sb.OrderBy("p.period_start", "p.import_run_id", "p.pub_individual_id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

func (r *Repository) UpdatePaymentCheckStatus(ctx context.Context, paymentID uint, checkStatus string) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("payments")
	ub.Set(ub.Assign("check_status", checkStatus))
	ub.Where(ub.Equal("id", paymentID))

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("payment %d not updated, no row found", paymentID)
	}

	return nil
}

// NextCheckNumber draws the next bank check number from the dedicated
// sequence.
func (r *Repository) NextCheckNumber(ctx context.Context) (int64, error) {
	var number int64
	err := r.QueryRowContext(ctx, "SELECT nextval('check_number_seq')").Scan(&number)
	return number, err
}

func (r *Repository) AssignPaymentCheckNumber(ctx context.Context, paymentID uint, checkNumber int64) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("payments")
	ub.Set(ub.Assign("check_number", checkNumber))
	ub.Where(ub.Equal("id", paymentID))

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("payment %d not updated, no row found", paymentID)
	}

	return nil
}

func (r *Repository) GetPubEftByPubIndividualID(ctx context.Context, pubIndividualID int) (*models.PubEft, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employee_id", "routing_number", "account_number", "account_type",
		"prenote_state_id", "pub_individual_id", "prenote_sent_at")
	sb.From("pub_efts")
	sb.Where(sb.Equal("pub_individual_id", pubIndividualID))

	var eft models.PubEft
	var prenoteStateID int
	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&eft.ID, &eft.EmployeeID, &eft.RoutingNumber, &eft.AccountNumber,
		&eft.AccountType, &prenoteStateID, &eft.PubIndividualID, &eft.PrenoteSentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	eft.PrenoteState = models.PrenoteStateByID[prenoteStateID]

	return &eft, nil
}

func (r *Repository) GetPubEftsInPrenoteState(ctx context.Context, state models.PrenoteState) ([]models.PubEft, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employee_id", "routing_number", "account_number", "account_type",
		"prenote_state_id", "pub_individual_id", "prenote_sent_at")
	sb.From("pub_efts")
	sb.Where(sb.Equal("prenote_state_id", state.ID))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var efts []models.PubEft
	for rows.Next() {
		var eft models.PubEft
		var prenoteStateID int
		if err = rows.Scan(&eft.ID, &eft.EmployeeID, &eft.RoutingNumber, &eft.AccountNumber,
			&eft.AccountType, &prenoteStateID, &eft.PubIndividualID, &eft.PrenoteSentAt); err != nil {
			return nil, err
		}
		eft.PrenoteState = models.PrenoteStateByID[prenoteStateID]
		efts = append(efts, eft)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return efts, nil
}

func (r *Repository) GetApprovedPubEftForEmployee(ctx context.Context, employeeID uint) (*models.PubEft, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employee_id", "routing_number", "account_number", "account_type",
		"prenote_state_id", "pub_individual_id", "prenote_sent_at")
	sb.From("pub_efts")
	sb.Where(
		sb.Equal("employee_id", employeeID),
		sb.Equal("prenote_state_id", models.PrenoteStateApproved.ID),
	)
	sb.OrderBy("prenote_sent_at").Desc().Limit(1)

	var eft models.PubEft
	var prenoteStateID int
	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&eft.ID, &eft.EmployeeID, &eft.RoutingNumber, &eft.AccountNumber,
		&eft.AccountType, &prenoteStateID, &eft.PubIndividualID, &eft.PrenoteSentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	eft.PrenoteState = models.PrenoteStateByID[prenoteStateID]

	return &eft, nil
}

func (r *Repository) UpdatePubEftPrenoteState(ctx context.Context, pubEftID uint, state models.PrenoteState, sentAt time.Time) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("pub_efts")
	if sentAt.IsZero() {
		ub.Set(ub.Assign("prenote_state_id", state.ID))
	} else {
		ub.Set(
			ub.Assign("prenote_state_id", state.ID),
			ub.Assign("prenote_sent_at", sentAt),
		)
	}
	ub.Where(ub.Equal("id", pubEftID))

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("pub_eft %d not updated, no row found", pubEftID)
	}

	return nil
}
