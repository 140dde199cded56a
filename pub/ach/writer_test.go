package ach

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteToLineFraming(t *testing.T) {
	builder := NewFileBuilder(testHeader())
	batch := builder.AddBatch(testBatchParams())
	require.NoError(t, batch.AddEntry(Entry{
		TransactionCode: TransCodeCheckingCredit,
		RoutingNumber:   "231380104",
		AccountNumber:   "998877",
		Amount:          decimal.RequireFromString("1250.00"),
		IDNumber:        PaymentIDNumber(81),
		Name:            "DOE JOHN",
	}))
	require.NoError(t, batch.AddEntry(Entry{
		TransactionCode: TransCodeCheckingPrenote,
		RoutingNumber:   "011401533",
		AccountNumber:   "5551212",
		Amount:          decimal.Zero,
		IDNumber:        PrenoteIDNumber(82),
		Name:            "ROE RICHARD",
	}))

	var sb strings.Builder
	require.NoError(t, builder.WriteTo(&sb))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 10, "records pad to a full block")
	for i, line := range lines {
		assert.Len(t, line, 94, "line %d", i+1)
	}

	assert.Equal(t, byte('1'), lines[0][0])
	assert.Equal(t, byte('5'), lines[1][0])
	assert.Equal(t, byte('6'), lines[2][0])
	assert.Equal(t, byte('6'), lines[3][0])
	assert.Equal(t, byte('8'), lines[4][0])
	assert.Equal(t, byte('9'), lines[5][0])
	for _, line := range lines[6:] {
		assert.Equal(t, paddingLine, line)
	}
}

func TestWriteToEntryFields(t *testing.T) {
	builder := NewFileBuilder(testHeader())
	batch := builder.AddBatch(testBatchParams())
	require.NoError(t, batch.AddEntry(Entry{
		TransactionCode: TransCodeCheckingCredit,
		RoutingNumber:   "231380104",
		AccountNumber:   "12345678",
		Amount:          decimal.RequireFromString("893.73"),
		IDNumber:        PaymentIDNumber(1001),
		Name:            "SMITH JANE",
	}))

	var sb strings.Builder
	require.NoError(t, builder.WriteTo(&sb))
	lines := strings.Split(sb.String(), "\n")
	entry := lines[2]

	assert.Equal(t, "22", entryTransactionCode.raw(entry))
	assert.Equal(t, "23138010", entryReceivingDFI.raw(entry))
	assert.Equal(t, "4", entryCheckDigit.raw(entry))
	assert.Equal(t, "0000089373", entryAmount.raw(entry))
	assert.Equal(t, "P1001", entryIDNumber.Alpha(entry))
	assert.Equal(t, "SMITH JANE", entryIndividualName.Alpha(entry))
	assert.Equal(t, "0", entryAddendaIndicator.raw(entry))
	assert.Equal(t, "046002280000001", entryTraceNumber.raw(entry))
}

func TestWriteToControlTotals(t *testing.T) {
	builder := NewFileBuilder(testHeader())
	batch := builder.AddBatch(testBatchParams())
	require.NoError(t, batch.AddEntry(Entry{
		TransactionCode: TransCodeCheckingCredit,
		RoutingNumber:   "231380104",
		AccountNumber:   "1",
		Amount:          decimal.RequireFromString("100.10"),
		IDNumber:        PaymentIDNumber(1),
		Name:            "A",
	}))
	require.NoError(t, batch.AddEntry(Entry{
		TransactionCode: TransCodeSavingsCredit,
		RoutingNumber:   "011401533",
		AccountNumber:   "2",
		Amount:          decimal.RequireFromString("49.90"),
		IDNumber:        PaymentIDNumber(2),
		Name:            "B",
	}))

	var sb strings.Builder
	require.NoError(t, builder.WriteTo(&sb))
	lines := strings.Split(sb.String(), "\n")

	var batchControl, fileControl string
	for _, line := range lines {
		if line == "" || line == paddingLine {
			continue
		}
		switch line[0] {
		case '8':
			batchControl = line
		case '9':
			fileControl = line
		}
	}
	require.NotEmpty(t, batchControl)
	require.NotEmpty(t, fileControl)

	count, err := batchControlEntryCount.Numeric(batchControl)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	hash, err := batchControlEntryHash.Numeric(batchControl)
	require.NoError(t, err)
	assert.EqualValues(t, 23138010+1140153, hash)

	credit, err := batchControlTotalCredit.Amount(batchControl)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.00").Equal(credit))

	debit, err := batchControlTotalDebit.Amount(batchControl)
	require.NoError(t, err)
	assert.True(t, debit.IsZero())

	batches, err := fileControlBatchCount.Numeric(fileControl)
	require.NoError(t, err)
	assert.EqualValues(t, 1, batches)

	blocks, err := fileControlBlockCount.Numeric(fileControl)
	require.NoError(t, err)
	assert.EqualValues(t, 1, blocks)

	fileCredit, err := fileControlTotalCredit.Amount(fileControl)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.00").Equal(fileCredit))
}

func TestAddEntryValidation(t *testing.T) {
	batch := NewFileBuilder(testHeader()).AddBatch(testBatchParams())

	err := batch.AddEntry(Entry{RoutingNumber: "12345", Amount: decimal.Zero})
	assert.EqualError(t, err, `routing number "12345" must be 9 digits`)

	err = batch.AddEntry(Entry{RoutingNumber: "ABCDEFGHI", Amount: decimal.Zero})
	assert.Error(t, err)

	err = batch.AddEntry(Entry{RoutingNumber: "231380104", Amount: decimal.RequireFromString("-1")})
	assert.EqualError(t, err, "entry amount -1 must not be negative")
}

// Writing a parsed return file back out reproduces the same returns and the
// same control totals.
func TestWriteParseRoundTrip(t *testing.T) {
	original := buildReturnFile(t,
		returnEntry("P1001", "R01", "893.73"),
		returnEntry("P1002", "R03", "12.00"),
		returnEntry("E17", "R02", "0"),
	)

	parsed, err := Parse(strings.NewReader(original))
	require.NoError(t, err)
	require.Len(t, parsed.Returns, 3)
	require.Empty(t, parsed.Warnings)

	builder := NewFileBuilder(testHeader())
	batch := builder.AddBatch(testBatchParams())
	for _, r := range parsed.Returns {
		require.NoError(t, batch.AddEntry(Entry{
			TransactionCode: TransCodeCheckingCredit,
			RoutingNumber:   r.RoutingNumber,
			AccountNumber:   r.AccountNumber,
			Amount:          r.Amount,
			IDNumber:        r.IDNumber,
			Name:            r.PayeeName,
			Addenda: &Addenda{
				TypeCode:    addendaTypeReturn,
				ReasonCode:  r.ReturnReasonCode,
				OriginalDFI: r.OriginalDFI,
			},
		}))
	}

	var sb strings.Builder
	require.NoError(t, builder.WriteTo(&sb))

	reparsed, err := Parse(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Empty(t, reparsed.Warnings)
	require.Len(t, reparsed.Returns, 3)

	for i, r := range parsed.Returns {
		assert.Equal(t, r.IDNumber, reparsed.Returns[i].IDNumber)
		assert.Equal(t, r.ReturnReasonCode, reparsed.Returns[i].ReturnReasonCode)
		assert.True(t, r.Amount.Equal(reparsed.Returns[i].Amount))
		assert.Equal(t, r.RoutingNumber, reparsed.Returns[i].RoutingNumber)
	}

	// The self-reported trailer totals of both renderings agree.
	originalTrailer := trailerLine(t, original)
	reTrailer := trailerLine(t, sb.String())
	for _, f := range []Field{fileControlBatchCount, fileControlEntryCount, fileControlEntryHash} {
		a, err := f.Numeric(originalTrailer)
		require.NoError(t, err)
		b, err := f.Numeric(reTrailer)
		require.NoError(t, err)
		assert.Equal(t, a, b, f.Name)
	}
	for _, f := range []Field{fileControlTotalDebit, fileControlTotalCredit} {
		a, err := f.Amount(originalTrailer)
		require.NoError(t, err)
		b, err := f.Amount(reTrailer)
		require.NoError(t, err)
		assert.True(t, a.Equal(b), f.Name)
	}
}

func trailerLine(t *testing.T, file string) string {
	t.Helper()
	for _, line := range strings.Split(file, "\n") {
		if line != "" && line != paddingLine && line[0] == '9' {
			return line
		}
	}
	t.Fatal("file has no control trailer")
	return ""
}

func TestFileHeaderFields(t *testing.T) {
	header := testHeader()
	header.CreationTime = time.Date(2021, 3, 14, 9, 30, 0, 0, time.UTC)

	var sb strings.Builder
	require.NoError(t, NewFileBuilder(header).WriteTo(&sb))
	line := strings.Split(sb.String(), "\n")[0]

	assert.Equal(t, " 231380104", fileHeaderImmediateDest.raw(line))
	assert.Equal(t, " 046002284", fileHeaderImmediateOrigin.raw(line))
	assert.Equal(t, "210314", fileHeaderCreationDate.raw(line))
	assert.Equal(t, "0930", fileHeaderCreationTime.raw(line))
	assert.Equal(t, "A", fileHeaderIDModifier.raw(line))
	assert.Equal(t, "094", fileHeaderRecordSize.raw(line))
	assert.Equal(t, "10", fileHeaderBlockingFactor.raw(line))
	assert.Equal(t, "PEOPLES UNITED BANK", fileHeaderDestinationName.Alpha(line))
}
