package ach

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Field is a positional field descriptor for one slice of a 94-character
// NACHA record. Records are decoded by applying a table of descriptors
// rather than ad-hoc string slicing, so a bad offset fails loudly in one
// place and every field access is named.
type Field struct {
	Name  string
	Start int
	Width int
}

func (f Field) end() int {
	return f.Start + f.Width
}

// raw returns the unmodified slice of the line covered by the field.
func (f Field) raw(line string) string {
	return line[f.Start:f.end()]
}

// Alpha returns the field trimmed of the space padding alphanumeric NACHA
// fields carry.
func (f Field) Alpha(line string) string {
	return strings.TrimSpace(f.raw(line))
}

// Numeric decodes a zero-padded unsigned numeric field.
func (f Field) Numeric(line string) (int64, error) {
	v := strings.TrimSpace(f.raw(line))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s is not numeric: %q", f.Name, f.raw(line))
	}
	return n, nil
}

// Amount decodes an unsigned integer-cents field into an exact decimal
// dollar amount.
func (f Field) Amount(line string) (decimal.Decimal, error) {
	cents, err := f.Numeric(line)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.New(cents, -2), nil
}

// writeAlpha renders v left-justified and space-padded to the field width,
// truncating anything too long.
func (f Field) writeAlpha(buf []byte, v string) {
	if len(v) > f.Width {
		v = v[:f.Width]
	}
	copy(buf[f.Start:], v)
	for i := f.Start + len(v); i < f.end(); i++ {
		buf[i] = ' '
	}
}

// writeNumeric renders v right-justified and zero-padded to the field width.
func (f Field) writeNumeric(buf []byte, v int64) {
	s := strconv.FormatInt(v, 10)
	if len(s) > f.Width {
		s = s[len(s)-f.Width:]
	}
	pad := f.Width - len(s)
	for i := 0; i < pad; i++ {
		buf[f.Start+i] = '0'
	}
	copy(buf[f.Start+pad:], s)
}

// Record layouts. Positions are zero-based offsets into the fixed
// 94-character line; the leading record type code occupies position 0.

// File header (record type 1)
var (
	fileHeaderPriorityCode     = Field{"priority code", 1, 2}
	fileHeaderImmediateDest    = Field{"immediate destination", 3, 10}
	fileHeaderImmediateOrigin  = Field{"immediate origin", 13, 10}
	fileHeaderCreationDate     = Field{"file creation date", 23, 6}
	fileHeaderCreationTime     = Field{"file creation time", 29, 4}
	fileHeaderIDModifier       = Field{"file ID modifier", 33, 1}
	fileHeaderRecordSize       = Field{"record size", 34, 3}
	fileHeaderBlockingFactor   = Field{"blocking factor", 37, 2}
	fileHeaderFormatCode       = Field{"format code", 39, 1}
	fileHeaderDestinationName  = Field{"immediate destination name", 40, 23}
	fileHeaderOriginName       = Field{"immediate origin name", 63, 23}
	fileHeaderReferenceCode    = Field{"reference code", 86, 8}
)

// Batch header (record type 5)
var (
	batchHeaderServiceClass     = Field{"service class code", 1, 3}
	batchHeaderCompanyName      = Field{"company name", 4, 16}
	batchHeaderCompanyID        = Field{"company identification", 40, 10}
	batchHeaderEntryClass       = Field{"standard entry class", 50, 3}
	batchHeaderEntryDescription = Field{"company entry description", 53, 10}
	batchHeaderEffectiveDate    = Field{"effective entry date", 69, 6}
	batchHeaderOriginatorStatus = Field{"originator status code", 78, 1}
	batchHeaderODFI             = Field{"originating DFI", 79, 8}
	batchHeaderBatchNumber      = Field{"batch number", 87, 7}
)

// Entry detail (record type 6)
var (
	entryTransactionCode  = Field{"transaction code", 1, 2}
	entryReceivingDFI     = Field{"receiving DFI", 3, 8}
	entryCheckDigit       = Field{"check digit", 11, 1}
	entryAccountNumber    = Field{"DFI account number", 12, 17}
	entryAmount           = Field{"amount", 29, 10}
	entryIDNumber         = Field{"individual identification number", 39, 15}
	entryIndividualName   = Field{"individual name", 54, 22}
	entryDiscretionary    = Field{"discretionary data", 76, 2}
	entryAddendaIndicator = Field{"addenda record indicator", 78, 1}
	entryTraceNumber      = Field{"trace number", 79, 15}
)

// Addenda (record type 7); layout shared by returns (type code 99) and
// change notifications (type code 98).
var (
	addendaTypeCode      = Field{"addenda type code", 1, 2}
	addendaReasonCode    = Field{"return reason code", 3, 3}
	addendaOriginalTrace = Field{"original entry trace number", 6, 15}
	addendaOriginalDFI   = Field{"original receiving DFI", 27, 8}
	addendaInformation   = Field{"addenda information", 35, 44}
	addendaTraceNumber   = Field{"trace number", 79, 15}
)

// Batch control (record type 8)
var (
	batchControlServiceClass = Field{"service class code", 1, 3}
	batchControlEntryCount   = Field{"entry/addenda count", 4, 6}
	batchControlEntryHash    = Field{"entry hash", 10, 10}
	batchControlTotalDebit   = Field{"total debit amount", 20, 12}
	batchControlTotalCredit  = Field{"total credit amount", 32, 12}
	batchControlCompanyID    = Field{"company identification", 44, 10}
	batchControlODFI         = Field{"originating DFI", 79, 8}
	batchControlBatchNumber  = Field{"batch number", 87, 7}
)

// File control (record type 9)
var (
	fileControlBatchCount    = Field{"batch count", 1, 6}
	fileControlBlockCount    = Field{"block count", 7, 6}
	fileControlEntryCount    = Field{"entry/addenda count", 13, 8}
	fileControlEntryHash     = Field{"entry hash", 21, 10}
	fileControlTotalDebit    = Field{"total debit amount", 31, 12}
	fileControlTotalCredit   = Field{"total credit amount", 43, 12}
)
