package errors

import "fmt"

// ReferenceFileAlreadyProcessed indicates an extract date group or return
// file that has a processed reference_files row, so the run is a no-op.
type ReferenceFileAlreadyProcessed struct {
	FileLocation string
}

func (e *ReferenceFileAlreadyProcessed) Error() string {
	return fmt.Sprintf("reference file %s has already been processed", e.FileLocation)
}

// ExtractGroupIncomplete indicates a date group missing one or more of its
// expected extract files.
type ExtractGroupIncomplete struct {
	Timestamp string
	Missing   []string
}

func (e *ExtractGroupIncomplete) Error() string {
	return fmt.Sprintf("extract group %s is missing files: %v", e.Timestamp, e.Missing)
}

// InvalidNachaFraming indicates a file that is malformed at the byte level;
// the whole file is rejected.
type InvalidNachaFraming struct {
	LineNumber int
	Msg        string
}

func (e *InvalidNachaFraming) Error() string {
	return fmt.Sprintf("invalid NACHA framing at line %d: %s", e.LineNumber, e.Msg)
}

// MissingRequiredColumns indicates an extract file header missing columns the
// staging copy requires. Ingestion of the file fails.
type MissingRequiredColumns struct {
	FileName string
	Columns  []string
}

func (e *MissingRequiredColumns) Error() string {
	return fmt.Sprintf("extract file %s is missing required columns: %v", e.FileName, e.Columns)
}

// MissingPaymentDetails indicates a payment under active processing that has
// no payment_details rows. That data is mandatory for current payments.
type MissingPaymentDetails struct {
	PaymentID uint
}

func (e *MissingPaymentDetails) Error() string {
	return fmt.Sprintf("payment %d has no payment details", e.PaymentID)
}
