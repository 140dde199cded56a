package ach

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
)

// NACHA record type codes, one per leading digit.
const (
	recordTypeFileHeader   = '1'
	recordTypeBatchHeader  = '5'
	recordTypeEntryDetail  = '6'
	recordTypeAddenda      = '7'
	recordTypeBatchControl = '8'
	recordTypeFileControl  = '9'
)

// Addenda type codes this engine cares about.
const (
	addendaTypeChangeNotification = 98
	addendaTypeReturn             = 99
)

// Standard transaction codes for outbound entries.
const (
	TransCodeCheckingCredit  = 22
	TransCodeCheckingPrenote = 23
	TransCodeSavingsCredit   = 32
	TransCodeSavingsPrenote  = 33
)

var paddingLine = strings.Repeat("9", constants.NachaLineLength)

// RawRecord is one classified line of a NACHA file, retained verbatim for
// auditability.
type RawRecord struct {
	TypeCode   byte
	LineNumber int
	Data       string
}

// ACHReturn is a bank-returned entry (addenda type 99).
type ACHReturn struct {
	IDNumber         string
	ReturnReasonCode string
	OriginalDFI      string
	RoutingNumber    string
	AccountNumber    string
	Amount           decimal.Decimal
	PayeeName        string
	LineNumber       int
	RawData          string
}

// ACHChangeNotification is a notification-of-change entry (addenda type 98):
// the bank accepted the entry but corrected some of its data.
type ACHChangeNotification struct {
	ACHReturn
	ChangeInformation string
}

// Warning is a recoverable structural issue found while parsing. The file is
// still usable; the warning carries the line for the audit trail.
type Warning struct {
	LineNumber int
	RawData    string
	Message    string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.LineNumber, w.Message)
}

// Correlation id conventions for PUB-originated entries: E<n> identifies a
// prenoted EFT, P<n> a payment. Anything else is an unknown format.
var (
	prenoteIDPattern = regexp.MustCompile(`^E([1-9][0-9]*)$`)
	paymentIDPattern = regexp.MustCompile(`^P([1-9][0-9]*)$`)
)

type IDNumberKind int

const (
	IDNumberUnknown IDNumberKind = iota
	IDNumberPrenote
	IDNumberPayment
)

// ParseIDNumber classifies a correlation id and extracts its numeric part.
func ParseIDNumber(idNumber string) (IDNumberKind, int) {
	if m := prenoteIDPattern.FindStringSubmatch(idNumber); m != nil {
		n, _ := strconv.Atoi(m[1])
		return IDNumberPrenote, n
	}
	if m := paymentIDPattern.FindStringSubmatch(idNumber); m != nil {
		n, _ := strconv.Atoi(m[1])
		return IDNumberPayment, n
	}
	return IDNumberUnknown, 0
}

// PrenoteIDNumber renders the correlation id for an EFT prenote entry.
func PrenoteIDNumber(pubIndividualID int) string {
	return fmt.Sprintf("E%d", pubIndividualID)
}

// PaymentIDNumber renders the correlation id for a payment entry.
func PaymentIDNumber(pubIndividualID int) string {
	return fmt.Sprintf("P%d", pubIndividualID)
}
