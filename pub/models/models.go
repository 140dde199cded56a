package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// ImportRun identifies one scheduled invocation of a batch step. Every row a
// step writes is tagged with its import run so a bad run can be traced end to
// end.
type ImportRun struct {
	ID         uint
	UUID       string
	Source     string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Employee is the claimant receiving benefit payments. A thin local mirror of
// the claims-system record, keyed by the claims-system customer number.
type Employee struct {
	ID                   uint
	FineosCustomerNumber string
	FirstName            string
	LastName             string
}

// Claim mirrors one leave claim from the claims system.
type Claim struct {
	ID              uint
	EmployeeID      uint
	FineosAbsenceID string
}

// AbsencePeriod is one approved absence span linked to a claim. The weekly
// cap lookback keys off the claim's earliest absence period start date.
type AbsencePeriod struct {
	ID            uint
	ClaimID       uint
	AbsenceCaseID string
	PeriodStart   time.Time
	PeriodEnd     time.Time
}

// Payment is the disbursement unit. Immutable once created except for
// status-adjacent fields (check status, bank correlation id).
type Payment struct {
	ID                   uint
	ClaimID              uint
	EmployeeID           uint
	TransactionType      TransactionType
	Amount               decimal.Decimal
	PeriodStart          time.Time
	PeriodEnd            time.Time
	DisbursementMethod   DisbursementMethod
	PubIndividualID      int
	CheckNumber          sql.NullInt64
	CheckStatus          sql.NullString
	FineosPeiCValue      string
	FineosPeiIValue      string
	ExtractionDate       time.Time
	ImportRunID          uint
	CreatedAt            time.Time
}

// PaymentDetail is a pay-period sub-allocation of a payment. One payment may
// span several pay periods; the weekly cap allocates at this granularity.
type PaymentDetail struct {
	ID                uint
	PaymentID         uint
	PeriodStart       time.Time
	PeriodEnd         time.Time
	Amount            decimal.Decimal
	BusinessNetAmount decimal.Decimal
}

// PubEft is a claimant bank account registered with the bank partner.
// Mutated only by prenote-return reconciliation.
type PubEft struct {
	ID              uint
	EmployeeID      uint
	RoutingNumber   string
	AccountNumber   string
	AccountType     string
	PrenoteState    PrenoteState
	PubIndividualID int
	PrenoteSentAt   sql.NullTime
}

// StateLogEntry is one immutable ledger transition. Entries are never
// mutated or deleted.
type StateLogEntry struct {
	ID          uint
	EntityType  EntityType
	EntityID    uint
	Flow        Flow
	EndState    EndState
	Outcome     Outcome
	ImportRunID uint
	CreatedAt   time.Time
}

// LatestStateLog points at the newest state log entry for an (entity, flow)
// pair. Exactly one row per pair; repointed in the same transaction as every
// append.
type LatestStateLog struct {
	ID          uint
	EntityType  EntityType
	EntityID    uint
	Flow        Flow
	StateLogID  uint
	EndState    EndState
}

// Outcome is the free-form record attached to a ledger transition. Persisted
// as jsonb.
type Outcome map[string]interface{}

// BuildOutcome creates an outcome carrying a message and any validation
// issues collected for the record.
func BuildOutcome(message string, issues ...ValidationIssue) Outcome {
	outcome := Outcome{"message": message}
	if len(issues) > 0 {
		outcome["validation_issues"] = issues
	}
	return outcome
}

// ValidationIssue is one business-rule failure on an otherwise parseable
// record. Business failures are data, not errors.
type ValidationIssue struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

// ReferenceFile identifies one ingested or produced file instance. The
// (file_type, file_location) pair is the idempotency marker that prevents
// re-ingesting an already-processed date group.
type ReferenceFile struct {
	ID                   uint
	FileLocation         string
	FileType             ReferenceFileType
	CreatedImportRunID   uint
	ProcessedImportRunID sql.NullInt64
	CreatedAt            time.Time
}

// PubError is a persisted per-record reconciliation failure. Append-only, one
// row per offending record.
type PubError struct {
	ID              uint
	ErrorType       string
	Message         string
	LineNumber      int
	RawData         string
	Details         Outcome
	PaymentID       sql.NullInt64
	PubEftID        sql.NullInt64
	ReferenceFileID uint
	ImportRunID     uint
	CreatedAt       time.Time
}

// WritebackDetail is one payment disposition queued for return to the claims
// system.
type WritebackDetail struct {
	ID                uint
	PaymentID         uint
	TransactionStatus WritebackTransactionStatus
	ImportRunID       uint
	CreatedAt         time.Time
	WritebackSentAt   sql.NullTime
}

// Staged extract rows. Staging tables hold the extract columns verbatim as
// text; conversion parses them into domain records and reports bad rows as
// pub_errors instead of failing the run.

// StagedClaimant is one row of the claimant feed.
type StagedClaimant struct {
	ID                   uint
	FineosCustomerNumber string
	FirstName            string
	LastName             string
	AbsenceCaseNumber    string
	RoutingNumber        string
	AccountNumber        string
	AccountType          string
	PaymentMethod        string
	ReferenceFileID      uint
	ImportRunID          uint
}

// StagedPaymentLine is one row of the payment feed, keyed by the claims
// system's C/I value pair.
type StagedPaymentLine struct {
	ID              uint
	CValue          string
	IValue          string
	EventType       string
	Amount          string
	PeriodStart     string
	PeriodEnd       string
	PaymentMethod   string
	ExtractionDate  string
	ReferenceFileID uint
	ImportRunID     uint
}

// StagedClaimDetail links a payment line to its claim's absence case number.
type StagedClaimDetail struct {
	ID                uint
	CValue            string
	IValue            string
	AbsenceCaseNumber string
	ReferenceFileID   uint
	ImportRunID       uint
}

// StagedPaymentDetail is one pay-period sub-allocation row of the payment
// detail feed, linked to its payment line by C/I value.
type StagedPaymentDetail struct {
	ID                uint
	CValue            string
	IValue            string
	PeriodStart       string
	PeriodEnd         string
	Amount            string
	BusinessNetAmount string
	ReferenceFileID   uint
	ImportRunID       uint
}

// StagedRequestedAbsence is one row of the requested-absence feed, carrying
// the absence periods linked to a claim.
type StagedRequestedAbsence struct {
	ID                uint
	AbsenceCaseNumber string
	ClaimAbsenceID    string
	PeriodStart       string
	PeriodEnd         string
	ReferenceFileID   uint
	ImportRunID       uint
}

// MaximumWeeklyBenefitAmount is one effective-dated statutory maximum. The
// applicable value for a window is the most recent row whose effective date
// is on or before the claim's earliest absence period start date.
type MaximumWeeklyBenefitAmount struct {
	EffectiveDate time.Time
	Amount        decimal.Decimal
}
