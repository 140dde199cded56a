package outbound

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

func testCreator(t *testing.T) (*Creator, string) {
	t.Helper()
	dir := t.TempDir()
	logger, _ := test.NewNullLogger()
	return &Creator{
		Logger:  logger,
		Handler: &files.LocalFileHandler{},
		Config: Config{
			OutboundDir:              dir,
			ImmediateDestination:     "231380104",
			ImmediateOrigin:          "046002284",
			ImmediateDestinationName: "PUB",
			ImmediateOriginName:      "DFML",
			CompanyName:              "DFML",
			CompanyID:                "0460022",
			OriginatingDFI:           "04600228",
		},
	}, dir
}

func stubLedgerWrites(repo *models.MockRepository) {
	repo.On("CreateStateLogEntry", mock.Anything, mock.Anything).Return(models.StateLogEntry{ID: 1}, nil)
	repo.On("UpsertLatestStateLog", mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateWritebackDetail", mock.Anything, mock.Anything).Return(uint(1), nil)
}

func TestCreateFiles(t *testing.T) {
	ctx := context.Background()
	creator, dir := testCreator(t)
	now := time.Date(2021, 3, 1, 6, 0, 0, 0, time.UTC)

	achPayment := models.Payment{
		ID: 1, EmployeeID: 10, ClaimID: 1,
		TransactionType:    models.TransactionTypeStandard,
		Amount:             decimal.RequireFromString("893.73"),
		DisbursementMethod: models.DisbursementMethodACH,
		PubIndividualID:    1001,
	}
	checkPayment := models.Payment{
		ID: 2, EmployeeID: 11, ClaimID: 2,
		TransactionType:    models.TransactionTypeStandard,
		Amount:             decimal.RequireFromString("150.00"),
		DisbursementMethod: models.DisbursementMethodCheck,
	}
	zeroDollar := models.Payment{
		ID: 3, EmployeeID: 10, ClaimID: 1,
		TransactionType:    models.TransactionTypeZeroDollar,
		Amount:             decimal.Zero,
		DisbursementMethod: models.DisbursementMethodACH,
	}
	prenoteEft := models.PubEft{
		ID: 7, EmployeeID: 12,
		RoutingNumber: "231380104", AccountNumber: "991234",
		AccountType: "Savings", PubIndividualID: 55,
		PrenoteState: models.PrenoteStatePendingPrePub,
	}

	repo := &models.MockRepository{}
	repo.On("GetEntityIDsInState", ctx, models.EntityTypePayment, models.FlowPayment, models.StatePaymentReadyForPub).
		Return([]uint{1, 2, 3}, nil)
	repo.On("GetPaymentsByIDs", ctx, []uint{1, 2, 3}).
		Return([]models.Payment{achPayment, checkPayment, zeroDollar}, nil)
	repo.On("GetPubEftsInPrenoteState", ctx, models.PrenoteStatePendingPrePub).
		Return([]models.PubEft{prenoteEft}, nil)
	repo.On("GetApprovedPubEftForEmployee", ctx, uint(10)).Return(&models.PubEft{
		ID: 5, EmployeeID: 10,
		RoutingNumber: "046002280", AccountNumber: "4455",
		AccountType: "Checking", PrenoteState: models.PrenoteStateApproved,
	}, nil)
	repo.On("GetEmployee", ctx, uint(10)).Return(&models.Employee{ID: 10, FirstName: "Jane", LastName: "Doe"}, nil)
	repo.On("GetEmployee", ctx, uint(11)).Return(&models.Employee{ID: 11, FirstName: "Sam", LastName: "Park"}, nil)
	repo.On("GetEmployee", ctx, uint(12)).Return(&models.Employee{ID: 12, FirstName: "Ada", LastName: "Li"}, nil)
	repo.On("NextCheckNumber", ctx).Return(int64(501), nil)
	repo.On("AssignPaymentCheckNumber", ctx, uint(2), int64(501)).Return(nil)
	repo.On("UpdatePubEftPrenoteState", ctx, uint(7), models.PrenoteStatePendingWithPub, now).Return(nil)
	repo.On("CreateReferenceFile", ctx, mock.Anything).Return(uint(9), nil)
	repo.On("MarkReferenceFileProcessed", ctx, uint(9), uint(4)).Return(nil)
	stubLedgerWrites(repo)

	result := &Result{ImportRunID: 4}
	require.NoError(t, creator.createFiles(ctx, repo, 4, now, result))

	assert.Equal(t, 1, result.AchPayments)
	assert.Equal(t, 1, result.Prenotes)
	assert.Equal(t, 1, result.CheckPayments)
	assert.Equal(t, 1, result.Completed)
	assert.Zero(t, result.MissingEft)

	nacha, err := os.ReadFile(result.NachaFile)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2021-03-01-06-00-00-pub-nacha.ach"), result.NachaFile)
	content := string(nacha)
	assert.Contains(t, content, "E55")
	assert.Contains(t, content, "P1001")
	assert.Contains(t, content, "0000089373")

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	assert.Zero(t, len(lines)%10)
	for _, line := range lines {
		assert.Len(t, line, 94)
	}

	issue, err := os.ReadFile(result.CheckFile)
	require.NoError(t, err)
	issueLines := strings.Split(strings.TrimSpace(string(issue)), "\n")
	require.Len(t, issueLines, 2)
	assert.Equal(t, "check_number,amount,payee_name,issue_date", issueLines[0])
	assert.Equal(t, "501,150.00,Park Sam,2021-03-01", issueLines[1])

	repo.AssertExpectations(t)
}

// A payment whose employee has no approved EFT yet is left in the ready
// state for a later run.
func TestCreateFilesMissingApprovedEft(t *testing.T) {
	ctx := context.Background()
	creator, _ := testCreator(t)
	now := time.Date(2021, 3, 1, 6, 0, 0, 0, time.UTC)

	payment := models.Payment{
		ID: 1, EmployeeID: 10,
		TransactionType:    models.TransactionTypeStandard,
		Amount:             decimal.RequireFromString("100.00"),
		DisbursementMethod: models.DisbursementMethodACH,
		PubIndividualID:    1002,
	}

	repo := &models.MockRepository{}
	repo.On("GetEntityIDsInState", ctx, models.EntityTypePayment, models.FlowPayment, models.StatePaymentReadyForPub).
		Return([]uint{1}, nil)
	repo.On("GetPaymentsByIDs", ctx, []uint{1}).Return([]models.Payment{payment}, nil)
	repo.On("GetPubEftsInPrenoteState", ctx, models.PrenoteStatePendingPrePub).Return(nil, nil)
	repo.On("GetApprovedPubEftForEmployee", ctx, uint(10)).Return(nil, nil)

	result := &Result{}
	require.NoError(t, creator.createFiles(ctx, repo, 4, now, result))

	assert.Equal(t, 1, result.MissingEft)
	assert.Zero(t, result.AchPayments)
	assert.Empty(t, result.NachaFile)
	repo.AssertNotCalled(t, "CreateStateLogEntry", mock.Anything, mock.Anything)
}

func TestCreateFilesNothingToDo(t *testing.T) {
	ctx := context.Background()
	creator, _ := testCreator(t)

	repo := &models.MockRepository{}
	repo.On("GetEntityIDsInState", ctx, models.EntityTypePayment, models.FlowPayment, models.StatePaymentReadyForPub).
		Return(nil, nil)
	repo.On("GetPubEftsInPrenoteState", ctx, models.PrenoteStatePendingPrePub).Return(nil, nil)

	result := &Result{}
	require.NoError(t, creator.createFiles(ctx, repo, 4, time.Now(), result))
	assert.Empty(t, result.NachaFile)
	assert.Empty(t, result.CheckFile)
}
