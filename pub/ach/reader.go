package ach

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
)

// ParseResult holds everything extracted from one inbound NACHA file:
// returns, change notifications, and the recoverable structural warnings
// accumulated along the way. Each record carries its original line number
// and raw line.
type ParseResult struct {
	Returns             []ACHReturn
	ChangeNotifications []ACHChangeNotification
	Warnings            []Warning
}

// fileControlTotals are the self-reported totals from the type-9 trailer.
type fileControlTotals struct {
	batchCount  int64
	entryCount  int64
	entryHash   int64
	totalDebit  decimal.Decimal
	totalCredit decimal.Decimal
}

// Parse reads a NACHA return file. Malformed framing (a line whose leading
// digit is not a known record type, or a file that does not open with a file
// header) rejects the whole file; everything else degrades to warnings and
// parsing continues with whatever is present.
func Parse(r io.Reader) (*ParseResult, error) {
	records, err := classify(r)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, &ers.InvalidNachaFraming{LineNumber: 0, Msg: "file contains no records"}
	}

	if records[0].TypeCode != recordTypeFileHeader {
		return nil, &ers.InvalidNachaFraming{
			LineNumber: records[0].LineNumber,
			Msg:        fmt.Sprintf("first record must be a file header, got type %c", records[0].TypeCode),
		}
	}

	result := &ParseResult{}
	records = records[1:]

	// The trailer is optional in practice: a missing one is a warning and we
	// simply skip total validation.
	var control *fileControlTotals
	if len(records) > 0 && records[len(records)-1].TypeCode == recordTypeFileControl {
		trailer := records[len(records)-1]
		records = records[:len(records)-1]

		control, err = parseFileControl(trailer)
		if err != nil {
			result.warnf(trailer, "unparseable file control trailer: %s", err)
			control = nil
		}
	} else {
		result.Warnings = append(result.Warnings, Warning{
			Message: "file control trailer is missing, skipping total validation",
		})
	}

	batchCount, entryCount := result.parseBatches(records)

	if control != nil {
		if control.batchCount != int64(batchCount) {
			result.Warnings = append(result.Warnings, Warning{
				Message: fmt.Sprintf("file control batch count %d does not match parsed count %d",
					control.batchCount, batchCount),
			})
		}
		if control.entryCount != int64(entryCount) {
			result.Warnings = append(result.Warnings, Warning{
				Message: fmt.Sprintf("file control entry/addenda count %d does not match parsed count %d",
					control.entryCount, entryCount),
			})
		}
	}

	return result, nil
}

// classify reads every line into a RawRecord keyed by its leading digit.
// Padding lines of 94 nines are discarded. An unknown leading digit is fatal:
// the file is malformed at the byte level, not a business issue.
func classify(r io.Reader) ([]RawRecord, error) {
	sc := bufio.NewScanner(r)

	var records []RawRecord
	lineNumber := 0
	for sc.Scan() {
		lineNumber++
		line := sc.Text()

		if line == "" || line == paddingLine {
			continue
		}

		if len(line) != constants.NachaLineLength {
			return nil, &ers.InvalidNachaFraming{
				LineNumber: lineNumber,
				Msg:        fmt.Sprintf("line is %d characters, expected %d", len(line), constants.NachaLineLength),
			}
		}

		switch line[0] {
		case recordTypeFileHeader, recordTypeBatchHeader, recordTypeEntryDetail,
			recordTypeAddenda, recordTypeBatchControl, recordTypeFileControl:
			records = append(records, RawRecord{TypeCode: line[0], LineNumber: lineNumber, Data: line})
		default:
			return nil, &ers.InvalidNachaFraming{
				LineNumber: lineNumber,
				Msg:        fmt.Sprintf("unknown record type code %q", line[0]),
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read NACHA stream")
	}

	return records, nil
}

// parseBatches partitions the body records into batches at each batch header
// and processes them, returning how many batches and entry/addenda records
// were seen for trailer validation.
func (result *ParseResult) parseBatches(records []RawRecord) (batchCount, entryCount int) {
	var batch []RawRecord
	flush := func() {
		if len(batch) == 0 {
			return
		}
		batchCount++
		entryCount += result.parseBatch(batch)
		batch = nil
	}

	for _, record := range records {
		if record.TypeCode == recordTypeBatchHeader {
			flush()
			batch = append(batch, record)
			continue
		}
		if len(batch) == 0 {
			// Entries arriving before any batch header still form a batch;
			// the missing header is worth a warning, not an abort.
			result.warnf(record, "record appears before any batch header")
		}
		batch = append(batch, record)
	}
	flush()

	return batchCount, entryCount
}

// parseBatch validates the batch framing and decodes its entry groups,
// returning the number of entry/addenda records consumed.
func (result *ParseResult) parseBatch(batch []RawRecord) (entryCount int) {
	if batch[0].TypeCode == recordTypeBatchHeader {
		batch = batch[1:]
	}

	if len(batch) > 0 && batch[len(batch)-1].TypeCode == recordTypeBatchControl {
		batch = batch[:len(batch)-1]
	} else if len(batch) > 0 {
		result.warnf(batch[len(batch)-1], "batch is missing its control record")
	}

	// Partition into (entry, addenda...) groups at each entry detail record.
	var group []RawRecord
	flush := func() {
		if len(group) == 0 {
			return
		}
		entryCount += len(group)
		result.parseEntryGroup(group)
		group = nil
	}

	for _, record := range batch {
		if record.TypeCode == recordTypeEntryDetail {
			flush()
			group = append(group, record)
			continue
		}
		if len(group) == 0 {
			result.warnf(record, "addenda record appears before any entry detail, skipping")
			entryCount++
			continue
		}
		group = append(group, record)
	}
	flush()

	return entryCount
}

// parseEntryGroup expects exactly an (entry detail, addenda) pair. Any other
// shape produces a warning and the group is skipped.
func (result *ParseResult) parseEntryGroup(group []RawRecord) {
	entry := group[0]

	if len(group) != 2 {
		result.warnf(entry, "expected one entry detail followed by one addenda record, got %d records", len(group))
		return
	}

	indicator, err := entryAddendaIndicator.Numeric(entry.Data)
	if err != nil || indicator != 1 {
		result.warnf(entry, "entry detail does not indicate an addenda record, skipping")
		return
	}

	addenda := group[1]
	typeCode, err := addendaTypeCode.Numeric(addenda.Data)
	if err != nil {
		result.warnf(addenda, "unparseable addenda type code, skipping")
		return
	}

	achReturn, err := decodeEntryPair(entry, addenda)
	if err != nil {
		result.warnf(entry, "could not decode entry: %s", err)
		return
	}

	switch typeCode {
	case addendaTypeReturn:
		result.Returns = append(result.Returns, achReturn)
	case addendaTypeChangeNotification:
		result.ChangeNotifications = append(result.ChangeNotifications, ACHChangeNotification{
			ACHReturn:         achReturn,
			ChangeInformation: addendaInformation.Alpha(addenda.Data),
		})
	default:
		result.warnf(addenda, "unexpected addenda type code %d, skipping", typeCode)
	}
}

// decodeEntryPair extracts the domain fields from a valid (entry, addenda)
// pair. The amount is integer cents rendered as an exact decimal; the id
// number is taken verbatim.
func decodeEntryPair(entry, addenda RawRecord) (ACHReturn, error) {
	amount, err := entryAmount.Amount(entry.Data)
	if err != nil {
		return ACHReturn{}, err
	}

	return ACHReturn{
		IDNumber:         entryIDNumber.Alpha(entry.Data),
		ReturnReasonCode: addendaReasonCode.Alpha(addenda.Data),
		OriginalDFI:      addendaOriginalDFI.Alpha(addenda.Data),
		RoutingNumber:    entryReceivingDFI.Alpha(entry.Data) + entryCheckDigit.Alpha(entry.Data),
		AccountNumber:    entryAccountNumber.Alpha(entry.Data),
		Amount:           amount,
		PayeeName:        entryIndividualName.Alpha(entry.Data),
		LineNumber:       entry.LineNumber,
		RawData:          entry.Data,
	}, nil
}

func parseFileControl(trailer RawRecord) (*fileControlTotals, error) {
	batchCount, err := fileControlBatchCount.Numeric(trailer.Data)
	if err != nil {
		return nil, err
	}
	entryCount, err := fileControlEntryCount.Numeric(trailer.Data)
	if err != nil {
		return nil, err
	}
	entryHash, err := fileControlEntryHash.Numeric(trailer.Data)
	if err != nil {
		return nil, err
	}
	totalDebit, err := fileControlTotalDebit.Amount(trailer.Data)
	if err != nil {
		return nil, err
	}
	totalCredit, err := fileControlTotalCredit.Amount(trailer.Data)
	if err != nil {
		return nil, err
	}

	return &fileControlTotals{
		batchCount:  batchCount,
		entryCount:  entryCount,
		entryHash:   entryHash,
		totalDebit:  totalDebit,
		totalCredit: totalCredit,
	}, nil
}

func (result *ParseResult) warnf(record RawRecord, format string, args ...interface{}) {
	result.Warnings = append(result.Warnings, Warning{
		LineNumber: record.LineNumber,
		RawData:    record.Data,
		Message:    fmt.Sprintf(format, args...),
	})
}
