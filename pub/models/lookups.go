package models

// The claims-system lookup tables this engine depends on, declared as an
// explicit compile-time registry. Each lookup variant is a typed package-level
// value with a stable database id; ByID maps are built once at startup from
// the declared slices. Nothing is resolved by name at runtime.

// EntityType discriminates what kind of entity a ledger entry tracks.
type EntityType string

const (
	EntityTypePayment  EntityType = "payment"
	EntityTypeEmployee EntityType = "employee"
	EntityTypePubEft   EntityType = "pub_eft"
)

// Flow is a lifecycle an entity moves through on the ledger.
type Flow struct {
	ID          int
	Description string
}

var (
	FlowPayment   = Flow{1, "PUB payment lifecycle"}
	FlowEft       = Flow{2, "PUB EFT prenote lifecycle"}
	FlowWriteback = Flow{3, "claims-system writeback lifecycle"}
)

var flows = []Flow{FlowPayment, FlowEft, FlowWriteback}
var FlowByID = map[int]Flow{}

// EndState is a terminal state a ledger transition lands an entity in.
type EndState struct {
	ID          int
	Description string
}

var (
	// Payment flow
	StatePaymentStaged             = EndState{10, "Payment staged from extract"}
	StatePaymentPostProcessing     = EndState{11, "Payment awaiting post-processing checks"}
	StatePaymentFailedDateMismatch = EndState{12, "Payment rejected: period does not match an absence period"}
	StatePaymentFailedWeeklyCap    = EndState{13, "Payment rejected: maximum weekly benefit exceeded"}
	StatePaymentSampledForAudit    = EndState{14, "Payment sampled for audit report"}
	StatePaymentReadyForPub        = EndState{15, "Payment ready for transaction file"}
	StatePaymentSentToPub          = EndState{16, "Payment sent to bank partner"}
	StatePaymentComplete           = EndState{17, "Payment complete"}
	StatePaymentErrorFromPub       = EndState{18, "Payment returned in error by bank partner"}

	// EFT flow
	StateEftPendingPrePub  = EndState{30, "EFT pending pre-registration"}
	StateEftPendingWithPub = EndState{31, "EFT prenote sent to bank partner"}
	StateEftApproved       = EndState{32, "EFT approved"}
	StateEftRejected       = EndState{33, "EFT rejected"}

	// Writeback flow
	StateWritebackQueued = EndState{50, "Disposition queued for claims-system writeback"}
	StateWritebackSent   = EndState{51, "Disposition written back to claims system"}
)

var endStates = []EndState{
	StatePaymentStaged, StatePaymentPostProcessing, StatePaymentFailedDateMismatch,
	StatePaymentFailedWeeklyCap, StatePaymentSampledForAudit, StatePaymentReadyForPub,
	StatePaymentSentToPub, StatePaymentComplete, StatePaymentErrorFromPub,
	StateEftPendingPrePub, StateEftPendingWithPub, StateEftApproved, StateEftRejected,
	StateWritebackQueued, StateWritebackSent,
}
var EndStateByID = map[int]EndState{}

// TransactionType classifies the payment as extracted from the claims system.
type TransactionType struct {
	ID          int
	Description string
}

var (
	TransactionTypeStandard              = TransactionType{1, "Standard"}
	TransactionTypeZeroDollar            = TransactionType{2, "Zero Dollar"}
	TransactionTypeOverpayment           = TransactionType{3, "Overpayment"}
	TransactionTypeCancellation          = TransactionType{4, "Cancellation"}
	TransactionTypeEmployerReimbursement = TransactionType{5, "Employer Reimbursement"}
	TransactionTypeLegacy                = TransactionType{6, "Legacy MMARS"}
	TransactionTypeAdhoc                 = TransactionType{7, "Ad-hoc"}
)

var transactionTypes = []TransactionType{
	TransactionTypeStandard, TransactionTypeZeroDollar, TransactionTypeOverpayment,
	TransactionTypeCancellation, TransactionTypeEmployerReimbursement,
	TransactionTypeLegacy, TransactionTypeAdhoc,
}
var TransactionTypeByID = map[int]TransactionType{}

// DisbursementMethod is how a payment leaves the building.
type DisbursementMethod struct {
	ID          int
	Description string
}

var (
	DisbursementMethodACH   = DisbursementMethod{1, "Elec Funds Transfer"}
	DisbursementMethodCheck = DisbursementMethod{2, "Check"}
)

var disbursementMethods = []DisbursementMethod{DisbursementMethodACH, DisbursementMethodCheck}
var DisbursementMethodByID = map[int]DisbursementMethod{}

// PrenoteState is the bank-account verification lifecycle.
type PrenoteState struct {
	ID          int
	Description string
}

var (
	PrenoteStatePendingPrePub  = PrenoteState{1, "Pending pre-registration"}
	PrenoteStatePendingWithPub = PrenoteState{2, "Pending with bank partner"}
	PrenoteStateApproved       = PrenoteState{3, "Approved"}
	PrenoteStateRejected       = PrenoteState{4, "Rejected"}
)

var prenoteStates = []PrenoteState{
	PrenoteStatePendingPrePub, PrenoteStatePendingWithPub,
	PrenoteStateApproved, PrenoteStateRejected,
}
var PrenoteStateByID = map[int]PrenoteState{}

// ReferenceFileType identifies what kind of file a reference_files row tracks.
type ReferenceFileType struct {
	ID          int
	Description string
}

var (
	FileTypeClaimantExtract        = ReferenceFileType{1, "Claimant extract"}
	FileTypePaymentExtract         = ReferenceFileType{2, "Payment extract"}
	FileTypePubNachaOutbound       = ReferenceFileType{3, "PUB NACHA file"}
	FileTypePubCheckOutbound       = ReferenceFileType{4, "PUB check issue file"}
	FileTypePubAchReturn           = ReferenceFileType{5, "PUB ACH return file"}
	FileTypePubCheckReturn         = ReferenceFileType{6, "PUB check payment return file"}
	FileTypeWriteback              = ReferenceFileType{7, "Claims-system writeback file"}
	FileTypePaymentAuditReport     = ReferenceFileType{8, "Payment audit report"}
)

var referenceFileTypes = []ReferenceFileType{
	FileTypeClaimantExtract, FileTypePaymentExtract, FileTypePubNachaOutbound,
	FileTypePubCheckOutbound, FileTypePubAchReturn, FileTypePubCheckReturn,
	FileTypeWriteback, FileTypePaymentAuditReport,
}
var ReferenceFileTypeByID = map[int]ReferenceFileType{}

// WritebackTransactionStatus is the disposition reported to the claims system.
type WritebackTransactionStatus struct {
	ID          int
	Description string
}

var (
	WritebackStatusPaid                   = WritebackTransactionStatus{1, "Paid"}
	WritebackStatusPostedToBank           = WritebackTransactionStatus{2, "Posted"}
	WritebackStatusBankProcessingError    = WritebackTransactionStatus{3, "Bank Processing Error"}
	WritebackStatusFailedWeeklyCap        = WritebackTransactionStatus{4, "Weekly Benefits Amount Exceeds $850"}
	WritebackStatusFailedAutomatedReview  = WritebackTransactionStatus{5, "Leave Plan In Review"}
	WritebackStatusPendingAudit           = WritebackTransactionStatus{6, "Payment Audit In Progress"}
	WritebackStatusFailedDateMismatch     = WritebackTransactionStatus{7, "Payment Period Mismatch"}
	WritebackStatusCheckVoided            = WritebackTransactionStatus{8, "Check Voided"}
	WritebackStatusCheckStale             = WritebackTransactionStatus{9, "Check Stale"}
	WritebackStatusCheckStopped           = WritebackTransactionStatus{10, "Check Stopped"}
)

var writebackStatuses = []WritebackTransactionStatus{
	WritebackStatusPaid, WritebackStatusPostedToBank, WritebackStatusBankProcessingError,
	WritebackStatusFailedWeeklyCap, WritebackStatusFailedAutomatedReview,
	WritebackStatusPendingAudit, WritebackStatusFailedDateMismatch,
	WritebackStatusCheckVoided, WritebackStatusCheckStale, WritebackStatusCheckStopped,
}
var WritebackStatusByID = map[int]WritebackTransactionStatus{}

func init() {
	for _, f := range flows {
		FlowByID[f.ID] = f
	}
	for _, s := range endStates {
		EndStateByID[s.ID] = s
	}
	for _, tt := range transactionTypes {
		TransactionTypeByID[tt.ID] = tt
	}
	for _, dm := range disbursementMethods {
		DisbursementMethodByID[dm.ID] = dm
	}
	for _, ps := range prenoteStates {
		PrenoteStateByID[ps.ID] = ps
	}
	for _, ft := range referenceFileTypes {
		ReferenceFileTypeByID[ft.ID] = ft
	}
	for _, ws := range writebackStatuses {
		WritebackStatusByID[ws.ID] = ws
	}
}
