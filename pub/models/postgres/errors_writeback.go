package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

func (r *Repository) CreatePubError(ctx context.Context, pubError models.PubError) (uint, error) {
	details, err := json.Marshal(pubError.Details)
	if err != nil {
		return 0, err
	}

	query, args := sqlbuilder.Buildf(`INSERT INTO pub_errors
		(error_type, message, line_number, raw_data, details, payment_id,
			pub_eft_id, reference_file_id, import_run_id) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		pubError.ErrorType, pubError.Message, pubError.LineNumber, pubError.RawData,
		string(details), pubError.PaymentID, pubError.PubEftID,
		pubError.ReferenceFileID, pubError.ImportRunID).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) CreateWritebackDetail(ctx context.Context, detail models.WritebackDetail) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO fineos_writeback_details
		(payment_id, transaction_status_id, import_run_id) VALUES
		(%s, %s, %s) RETURNING id`,
		detail.PaymentID, detail.TransactionStatus.ID, detail.ImportRunID).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetPendingWritebackDetails(ctx context.Context) ([]models.WritebackDetail, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "payment_id", "transaction_status_id", "import_run_id", "created_at")
	sb.From("fineos_writeback_details")
	sb.Where(sb.IsNull("writeback_sent_at"))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []models.WritebackDetail
	for rows.Next() {
		var d models.WritebackDetail
		var statusID int
		if err = rows.Scan(&d.ID, &d.PaymentID, &statusID, &d.ImportRunID, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.TransactionStatus = models.WritebackStatusByID[statusID]
		details = append(details, d)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return details, nil
}

func (r *Repository) MarkWritebackDetailsSent(ctx context.Context, ids []uint, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	ub := sqlFlavor.NewUpdateBuilder().Update("fineos_writeback_details")
	ub.Set(ub.Assign("writeback_sent_at", sentAt))

	idValues := make([]interface{}, len(ids))
	for i, id := range ids {
		idValues[i] = id
	}
	ub.Where(ub.In("id", idValues...))

	query, args := ub.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}
