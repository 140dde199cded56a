package models

import (
	"context"
	"time"
)

// Repository contains every database interaction the batch steps perform.
// Implementations bound to a *sql.Tx participate in the caller's transaction;
// each batch step opens one transaction, commits once at the end, and rolls
// the whole thing back on any structural failure.
type Repository interface {
	// Import runs
	CreateImportRun(ctx context.Context, run ImportRun) (uint, error)
	UpdateImportRunStatus(ctx context.Context, id uint, status string) error

	// Reference files
	GetReferenceFileExists(ctx context.Context, fileType ReferenceFileType, location string) (bool, error)
	CreateReferenceFile(ctx context.Context, rf ReferenceFile) (uint, error)
	MarkReferenceFileProcessed(ctx context.Context, id uint, importRunID uint) error

	// State ledger
	CreateStateLogEntry(ctx context.Context, entry StateLogEntry) (StateLogEntry, error)
	UpsertLatestStateLog(ctx context.Context, entry StateLogEntry) error
	GetLatestEndState(ctx context.Context, entityType EntityType, entityID uint, flow Flow) (*EndState, error)
	GetEntityIDsInState(ctx context.Context, entityType EntityType, flow Flow, endState EndState) ([]uint, error)

	// Payments
	CreatePayment(ctx context.Context, payment Payment) (uint, error)
	CreatePaymentDetail(ctx context.Context, detail PaymentDetail) (uint, error)
	GetPaymentsByIDs(ctx context.Context, ids []uint) ([]Payment, error)
	GetPaymentByPubIndividualID(ctx context.Context, pubIndividualID int) (*Payment, error)
	GetPaymentByCheckNumber(ctx context.Context, checkNumber int64) (*Payment, error)
	GetPaymentDetails(ctx context.Context, paymentID uint) ([]PaymentDetail, error)
	GetEmployeePaymentsInStates(ctx context.Context, employeeID uint, flow Flow, states []EndState) ([]Payment, error)
	UpdatePaymentCheckStatus(ctx context.Context, paymentID uint, checkStatus string) error
	NextCheckNumber(ctx context.Context) (int64, error)
	AssignPaymentCheckNumber(ctx context.Context, paymentID uint, checkNumber int64) error

	// Employees, claims and reference data
	GetEmployee(ctx context.Context, id uint) (*Employee, error)
	GetEmployeeByCustomerNumber(ctx context.Context, customerNumber string) (*Employee, error)
	UpsertEmployee(ctx context.Context, employee Employee) (uint, error)
	GetClaimByAbsenceID(ctx context.Context, fineosAbsenceID string) (*Claim, error)
	UpsertClaim(ctx context.Context, claim Claim) (uint, error)
	UpsertAbsencePeriod(ctx context.Context, period AbsencePeriod) error
	GetAbsencePeriodsForClaim(ctx context.Context, claimID uint) ([]AbsencePeriod, error)
	GetMaximumWeeklyBenefitAmounts(ctx context.Context) ([]MaximumWeeklyBenefitAmount, error)

	// Staged extract rows, read back by the conversion step
	GetStagedClaimants(ctx context.Context, importRunID uint) ([]StagedClaimant, error)
	GetStagedPaymentLines(ctx context.Context, importRunID uint) ([]StagedPaymentLine, error)
	GetStagedPaymentDetails(ctx context.Context, importRunID uint) ([]StagedPaymentDetail, error)
	GetStagedClaimDetails(ctx context.Context, importRunID uint) ([]StagedClaimDetail, error)
	GetStagedRequestedAbsences(ctx context.Context, importRunID uint) ([]StagedRequestedAbsence, error)
	NextPubIndividualID(ctx context.Context) (int, error)

	// EFT / prenotes
	UpsertPubEft(ctx context.Context, eft PubEft) (uint, error)
	GetPubEftForEmployeeAccount(ctx context.Context, employeeID uint, routingNumber, accountNumber string) (*PubEft, error)
	GetPubEftByPubIndividualID(ctx context.Context, pubIndividualID int) (*PubEft, error)
	GetPubEftsInPrenoteState(ctx context.Context, state PrenoteState) ([]PubEft, error)
	GetApprovedPubEftForEmployee(ctx context.Context, employeeID uint) (*PubEft, error)
	UpdatePubEftPrenoteState(ctx context.Context, pubEftID uint, state PrenoteState, sentAt time.Time) error

	// PUB errors
	CreatePubError(ctx context.Context, pubError PubError) (uint, error)

	// Writeback
	CreateWritebackDetail(ctx context.Context, detail WritebackDetail) (uint, error)
	GetPendingWritebackDetails(ctx context.Context) ([]WritebackDetail, error)
	MarkWritebackDetailsSent(ctx context.Context, ids []uint, sentAt time.Time) error
}
