package ach

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
)

// FileHeader carries the identification the bank partner expects on every
// outbound file.
type FileHeader struct {
	ImmediateDestination     string
	ImmediateOrigin          string
	ImmediateDestinationName string
	ImmediateOriginName      string
	FileIDModifier           string
	CreationTime             time.Time
}

// BatchParams configures one outbound batch.
type BatchParams struct {
	ServiceClassCode   int
	CompanyName        string
	CompanyID          string
	StandardEntryClass string
	EntryDescription   string
	EffectiveEntryDate time.Time
	OriginatingDFI     string
}

// Entry is one outbound entry detail record. Amount is in dollars and is
// rendered as integer cents. Addenda is optional; outbound payment and
// prenote entries carry none, regenerated return entries carry one.
type Entry struct {
	TransactionCode int
	RoutingNumber   string
	AccountNumber   string
	Amount          decimal.Decimal
	IDNumber        string
	Name            string
	Addenda         *Addenda
}

// Addenda is the optional type-7 companion record for an entry.
type Addenda struct {
	TypeCode      int
	ReasonCode    string
	OriginalTrace string
	OriginalDFI   string
	Information   string
}

// FileBuilder assembles a NACHA file: header, batches with computed batch
// controls, a file control trailer, and 9-filled padding out to the blocking
// factor. The same structural algorithm as the reader, in reverse.
type FileBuilder struct {
	header  FileHeader
	batches []*Batch
}

// Batch accumulates entries and the running totals its control record needs.
type Batch struct {
	params      BatchParams
	number      int
	entries     []Entry
	entryHash   int64
	totalCredit decimal.Decimal
	totalDebit  decimal.Decimal
}

func NewFileBuilder(header FileHeader) *FileBuilder {
	if header.FileIDModifier == "" {
		header.FileIDModifier = "A"
	}
	return &FileBuilder{header: header}
}

// AddBatch opens a new batch; batch numbers are assigned in order.
func (b *FileBuilder) AddBatch(params BatchParams) *Batch {
	batch := &Batch{params: params, number: len(b.batches) + 1}
	b.batches = append(b.batches, batch)
	return batch
}

// AddEntry appends one entry detail record to the batch. The routing number
// must be the full 9 digits (8-digit DFI plus check digit).
func (batch *Batch) AddEntry(entry Entry) error {
	if len(entry.RoutingNumber) != 9 {
		return fmt.Errorf("routing number %q must be 9 digits", entry.RoutingNumber)
	}
	dfi, err := strconv.ParseInt(entry.RoutingNumber[:8], 10, 64)
	if err != nil {
		return errors.Wrapf(err, "routing number %q is not numeric", entry.RoutingNumber)
	}
	if entry.Amount.IsNegative() {
		return fmt.Errorf("entry amount %s must not be negative", entry.Amount)
	}

	batch.entries = append(batch.entries, entry)
	batch.entryHash += dfi
	if isDebit(entry.TransactionCode) {
		batch.totalDebit = batch.totalDebit.Add(entry.Amount)
	} else {
		batch.totalCredit = batch.totalCredit.Add(entry.Amount)
	}
	return nil
}

// entryRecordCount is the entry/addenda count contribution of the batch.
func (batch *Batch) entryRecordCount() int {
	count := 0
	for _, e := range batch.entries {
		count++
		if e.Addenda != nil {
			count++
		}
	}
	return count
}

// WriteTo renders the file. Every line is exactly 94 characters; the file is
// padded with lines of nines to a multiple of the blocking factor.
func (b *FileBuilder) WriteTo(w io.Writer) error {
	lines := []string{b.renderFileHeader()}

	entryCount := 0
	var entryHash int64
	totalDebit, totalCredit := decimal.Zero, decimal.Zero

	for _, batch := range b.batches {
		lines = append(lines, batch.render()...)
		entryCount += batch.entryRecordCount()
		entryHash += batch.entryHash
		totalDebit = totalDebit.Add(batch.totalDebit)
		totalCredit = totalCredit.Add(batch.totalCredit)
	}

	// Block count covers every record including the trailer itself.
	recordCount := len(lines) + 1
	blockCount := (recordCount + constants.NachaBlockingFactor - 1) / constants.NachaBlockingFactor

	lines = append(lines, b.renderFileControl(blockCount, entryCount, entryHash, totalDebit, totalCredit))

	for len(lines)%constants.NachaBlockingFactor != 0 {
		lines = append(lines, paddingLine)
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return errors.Wrap(err, "failed to write NACHA file")
		}
	}
	return nil
}

func (b *FileBuilder) renderFileHeader() string {
	buf := newLine(recordTypeFileHeader)
	fileHeaderPriorityCode.writeNumeric(buf, 1)
	// Immediate destination and origin are conventionally blank-prefixed
	// 10-character routing fields.
	fileHeaderImmediateDest.writeAlpha(buf, " "+b.header.ImmediateDestination)
	fileHeaderImmediateOrigin.writeAlpha(buf, " "+b.header.ImmediateOrigin)
	fileHeaderCreationDate.writeAlpha(buf, b.header.CreationTime.Format("060102"))
	fileHeaderCreationTime.writeAlpha(buf, b.header.CreationTime.Format("1504"))
	fileHeaderIDModifier.writeAlpha(buf, b.header.FileIDModifier)
	fileHeaderRecordSize.writeNumeric(buf, constants.NachaLineLength)
	fileHeaderBlockingFactor.writeNumeric(buf, constants.NachaBlockingFactor)
	fileHeaderFormatCode.writeNumeric(buf, 1)
	fileHeaderDestinationName.writeAlpha(buf, b.header.ImmediateDestinationName)
	fileHeaderOriginName.writeAlpha(buf, b.header.ImmediateOriginName)
	fileHeaderReferenceCode.writeAlpha(buf, "")
	return string(buf)
}

func (batch *Batch) render() []string {
	lines := []string{batch.renderHeader()}

	sequence := 0
	for _, entry := range batch.entries {
		sequence++
		lines = append(lines, batch.renderEntry(entry, sequence))
		if entry.Addenda != nil {
			lines = append(lines, batch.renderAddenda(*entry.Addenda, sequence))
		}
	}

	lines = append(lines, batch.renderControl())
	return lines
}

func (batch *Batch) renderHeader() string {
	buf := newLine(recordTypeBatchHeader)
	batchHeaderServiceClass.writeNumeric(buf, int64(batch.params.ServiceClassCode))
	batchHeaderCompanyName.writeAlpha(buf, batch.params.CompanyName)
	batchHeaderCompanyID.writeAlpha(buf, batch.params.CompanyID)
	batchHeaderEntryClass.writeAlpha(buf, batch.params.StandardEntryClass)
	batchHeaderEntryDescription.writeAlpha(buf, batch.params.EntryDescription)
	batchHeaderEffectiveDate.writeAlpha(buf, batch.params.EffectiveEntryDate.Format("060102"))
	batchHeaderOriginatorStatus.writeAlpha(buf, "1")
	batchHeaderODFI.writeAlpha(buf, batch.params.OriginatingDFI)
	batchHeaderBatchNumber.writeNumeric(buf, int64(batch.number))
	return string(buf)
}

func (batch *Batch) renderEntry(entry Entry, sequence int) string {
	buf := newLine(recordTypeEntryDetail)
	entryTransactionCode.writeNumeric(buf, int64(entry.TransactionCode))
	entryReceivingDFI.writeAlpha(buf, entry.RoutingNumber[:8])
	entryCheckDigit.writeAlpha(buf, entry.RoutingNumber[8:])
	entryAccountNumber.writeAlpha(buf, entry.AccountNumber)
	entryAmount.writeNumeric(buf, entry.Amount.Shift(2).IntPart())
	entryIDNumber.writeAlpha(buf, entry.IDNumber)
	entryIndividualName.writeAlpha(buf, entry.Name)
	entryDiscretionary.writeAlpha(buf, "")
	if entry.Addenda != nil {
		entryAddendaIndicator.writeNumeric(buf, 1)
	} else {
		entryAddendaIndicator.writeNumeric(buf, 0)
	}
	entryTraceNumber.writeAlpha(buf, batch.traceNumber(sequence))
	return string(buf)
}

func (batch *Batch) renderAddenda(addenda Addenda, sequence int) string {
	buf := newLine(recordTypeAddenda)
	addendaTypeCode.writeNumeric(buf, int64(addenda.TypeCode))
	addendaReasonCode.writeAlpha(buf, addenda.ReasonCode)
	addendaOriginalTrace.writeAlpha(buf, addenda.OriginalTrace)
	addendaOriginalDFI.writeAlpha(buf, addenda.OriginalDFI)
	addendaInformation.writeAlpha(buf, addenda.Information)
	addendaTraceNumber.writeAlpha(buf, batch.traceNumber(sequence))
	return string(buf)
}

func (batch *Batch) renderControl() string {
	buf := newLine(recordTypeBatchControl)
	batchControlServiceClass.writeNumeric(buf, int64(batch.params.ServiceClassCode))
	batchControlEntryCount.writeNumeric(buf, int64(batch.entryRecordCount()))
	batchControlEntryHash.writeNumeric(buf, truncateHash(batch.entryHash))
	batchControlTotalDebit.writeNumeric(buf, batch.totalDebit.Shift(2).IntPart())
	batchControlTotalCredit.writeNumeric(buf, batch.totalCredit.Shift(2).IntPart())
	batchControlCompanyID.writeAlpha(buf, batch.params.CompanyID)
	batchControlODFI.writeAlpha(buf, batch.params.OriginatingDFI)
	batchControlBatchNumber.writeNumeric(buf, int64(batch.number))
	return string(buf)
}

func (b *FileBuilder) renderFileControl(blockCount, entryCount int, entryHash int64, totalDebit, totalCredit decimal.Decimal) string {
	buf := newLine(recordTypeFileControl)
	fileControlBatchCount.writeNumeric(buf, int64(len(b.batches)))
	fileControlBlockCount.writeNumeric(buf, int64(blockCount))
	fileControlEntryCount.writeNumeric(buf, int64(entryCount))
	fileControlEntryHash.writeNumeric(buf, truncateHash(entryHash))
	fileControlTotalDebit.writeNumeric(buf, totalDebit.Shift(2).IntPart())
	fileControlTotalCredit.writeNumeric(buf, totalCredit.Shift(2).IntPart())
	return string(buf)
}

// traceNumber is the originating DFI followed by a 7-digit sequence.
func (batch *Batch) traceNumber(sequence int) string {
	return fmt.Sprintf("%s%07d", batch.params.OriginatingDFI, sequence)
}

// truncateHash keeps the low-order ten digits, per the NACHA entry hash rule.
func truncateHash(hash int64) int64 {
	return hash % 10000000000
}

func isDebit(transactionCode int) bool {
	// 2x credit, 3x savings credit; debits are 27/37 and friends.
	switch transactionCode {
	case 27, 28, 29, 37, 38, 39:
		return true
	}
	return false
}

func newLine(typeCode byte) []byte {
	buf := make([]byte, constants.NachaLineLength)
	for i := range buf {
		buf[i] = ' '
	}
	buf[0] = typeCode
	return buf
}
