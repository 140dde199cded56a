package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/huandu/go-sqlbuilder"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

// Employees, claims and EFT records are local mirrors of the claims system:
// ingestion upserts them keyed by their claims-system identifiers so a
// re-imported extract never duplicates a row.

func (r *Repository) GetEmployeeByCustomerNumber(ctx context.Context, customerNumber string) (*models.Employee, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "fineos_customer_number", "first_name", "last_name")
	sb.From("employees")
	sb.Where(sb.Equal("fineos_customer_number", customerNumber))

	var employee models.Employee
	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&employee.ID, &employee.FineosCustomerNumber,
		&employee.FirstName, &employee.LastName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &employee, nil
}

func (r *Repository) UpsertEmployee(ctx context.Context, employee models.Employee) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO employees
		(fineos_customer_number, first_name, last_name) VALUES
		(%s, %s, %s)
		ON CONFLICT (fineos_customer_number) DO UPDATE SET
		first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
		RETURNING id`,
		employee.FineosCustomerNumber, employee.FirstName, employee.LastName).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetClaimByAbsenceID(ctx context.Context, fineosAbsenceID string) (*models.Claim, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employee_id", "fineos_absence_id")
	sb.From("claims")
	sb.Where(sb.Equal("fineos_absence_id", fineosAbsenceID))

	var claim models.Claim
	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&claim.ID, &claim.EmployeeID, &claim.FineosAbsenceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &claim, nil
}

func (r *Repository) UpsertClaim(ctx context.Context, claim models.Claim) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO claims
		(employee_id, fineos_absence_id) VALUES
		(%s, %s)
		ON CONFLICT (fineos_absence_id) DO UPDATE SET
		employee_id = EXCLUDED.employee_id
		RETURNING id`,
		claim.EmployeeID, claim.FineosAbsenceID).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) UpsertAbsencePeriod(ctx context.Context, period models.AbsencePeriod) error {
	query, args := sqlbuilder.Buildf(`INSERT INTO absence_periods
		(claim_id, absence_case_id, period_start, period_end) VALUES
		(%s, %s, %s, %s)
		ON CONFLICT (claim_id, absence_case_id, period_start) DO UPDATE SET
		period_end = EXCLUDED.period_end`,
		period.ClaimID, period.AbsenceCaseID, period.PeriodStart, period.PeriodEnd).
		BuildWithFlavor(sqlFlavor)

	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) UpsertPubEft(ctx context.Context, eft models.PubEft) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO pub_efts
		(employee_id, routing_number, account_number, account_type,
		prenote_state_id, pub_individual_id) VALUES
		(%s, %s, %s, %s, %s, %s)
		ON CONFLICT (employee_id, routing_number, account_number) DO UPDATE SET
		account_type = EXCLUDED.account_type
		RETURNING id`,
		eft.EmployeeID, eft.RoutingNumber, eft.AccountNumber, eft.AccountType,
		eft.PrenoteState.ID, eft.PubIndividualID).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

// NextPubIndividualID draws the next bank correlation id from the dedicated
// sequence. Ids are never reused, even across failed runs.
func (r *Repository) NextPubIndividualID(ctx context.Context) (int, error) {
	var id int
	err := r.QueryRowContext(ctx, "SELECT nextval('pub_individual_id_seq')").Scan(&id)
	return id, err
}

func (r *Repository) GetStagedClaimants(ctx context.Context, importRunID uint) ([]models.StagedClaimant, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "fineos_customer_number", "first_name", "last_name",
		"absence_case_number", "routing_number", "account_number",
		"account_type", "payment_method", "reference_file_id", "import_run_id")
	sb.From("staging_claimants")
	sb.Where(sb.Equal("import_run_id", importRunID))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimants []models.StagedClaimant
	for rows.Next() {
		var c models.StagedClaimant
		if err = rows.Scan(&c.ID, &c.FineosCustomerNumber, &c.FirstName, &c.LastName,
			&c.AbsenceCaseNumber, &c.RoutingNumber, &c.AccountNumber,
			&c.AccountType, &c.PaymentMethod, &c.ReferenceFileID, &c.ImportRunID); err != nil {
			return nil, err
		}
		claimants = append(claimants, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return claimants, nil
}

func (r *Repository) GetStagedPaymentLines(ctx context.Context, importRunID uint) ([]models.StagedPaymentLine, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "c_value", "i_value", "event_type", "amount",
		"period_start", "period_end", "payment_method",
		"extraction_date", "reference_file_id", "import_run_id")
	sb.From("staging_payment_lines")
	sb.Where(sb.Equal("import_run_id", importRunID))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.StagedPaymentLine
	for rows.Next() {
		var l models.StagedPaymentLine
		if err = rows.Scan(&l.ID, &l.CValue, &l.IValue, &l.EventType, &l.Amount,
			&l.PeriodStart, &l.PeriodEnd, &l.PaymentMethod,
			&l.ExtractionDate, &l.ReferenceFileID, &l.ImportRunID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (r *Repository) GetStagedPaymentDetails(ctx context.Context, importRunID uint) ([]models.StagedPaymentDetail, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "c_value", "i_value", "period_start", "period_end",
		"amount", "business_net_amount", "reference_file_id", "import_run_id")
	sb.From("staging_payment_details")
	sb.Where(sb.Equal("import_run_id", importRunID))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []models.StagedPaymentDetail
	for rows.Next() {
		var d models.StagedPaymentDetail
		if err = rows.Scan(&d.ID, &d.CValue, &d.IValue, &d.PeriodStart, &d.PeriodEnd,
			&d.Amount, &d.BusinessNetAmount, &d.ReferenceFileID, &d.ImportRunID); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return details, nil
}

func (r *Repository) GetStagedClaimDetails(ctx context.Context, importRunID uint) ([]models.StagedClaimDetail, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "c_value", "i_value", "absence_case_number",
		"reference_file_id", "import_run_id")
	sb.From("staging_claim_details")
	sb.Where(sb.Equal("import_run_id", importRunID))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []models.StagedClaimDetail
	for rows.Next() {
		var d models.StagedClaimDetail
		if err = rows.Scan(&d.ID, &d.CValue, &d.IValue, &d.AbsenceCaseNumber,
			&d.ReferenceFileID, &d.ImportRunID); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return details, nil
}

func (r *Repository) GetPubEftForEmployeeAccount(ctx context.Context, employeeID uint, routingNumber, accountNumber string) (*models.PubEft, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employee_id", "routing_number", "account_number",
		"account_type", "prenote_state_id", "pub_individual_id", "prenote_sent_at")
	sb.From("pub_efts")
	sb.Where(
		sb.Equal("employee_id", employeeID),
		sb.Equal("routing_number", routingNumber),
		sb.Equal("account_number", accountNumber),
	)

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

	state, ok := models.PrenoteStateByID[prenoteStateID]
	if !ok {
		return nil, errors.New("pub_eft row carries an unregistered prenote state id")
	}
	eft.PrenoteState = state

	return &eft, nil
}

func (r *Repository) GetStagedRequestedAbsences(ctx context.Context, importRunID uint) ([]models.StagedRequestedAbsence, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "absence_case_number", "claim_absence_id", "period_start",
		"period_end", "reference_file_id", "import_run_id")
	sb.From("staging_requested_absences")
	sb.Where(sb.Equal("import_run_id", importRunID))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var absences []models.StagedRequestedAbsence
	for rows.Next() {
		var a models.StagedRequestedAbsence
		if err = rows.Scan(&a.ID, &a.AbsenceCaseNumber, &a.ClaimAbsenceID,
			&a.PeriodStart, &a.PeriodEnd, &a.ReferenceFileID, &a.ImportRunID); err != nil {
			return nil, err
		}
		absences = append(absences, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return absences, nil
}
