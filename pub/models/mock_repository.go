package models

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock over Repository, used by stage tests to
// exercise business logic without a database.
type MockRepository struct {
	mock.Mock
}

var _ Repository = &MockRepository{}

func (m *MockRepository) CreateImportRun(ctx context.Context, run ImportRun) (uint, error) {
	args := m.Called(ctx, run)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) UpdateImportRunStatus(ctx context.Context, id uint, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepository) GetReferenceFileExists(ctx context.Context, fileType ReferenceFileType, location string) (bool, error) {
	args := m.Called(ctx, fileType, location)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateReferenceFile(ctx context.Context, rf ReferenceFile) (uint, error) {
	args := m.Called(ctx, rf)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) MarkReferenceFileProcessed(ctx context.Context, id uint, importRunID uint) error {
	args := m.Called(ctx, id, importRunID)
	return args.Error(0)
}

func (m *MockRepository) CreateStateLogEntry(ctx context.Context, entry StateLogEntry) (StateLogEntry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(StateLogEntry), args.Error(1)
}

func (m *MockRepository) UpsertLatestStateLog(ctx context.Context, entry StateLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) GetLatestEndState(ctx context.Context, entityType EntityType, entityID uint, flow Flow) (*EndState, error) {
	args := m.Called(ctx, entityType, entityID, flow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EndState), args.Error(1)
}

func (m *MockRepository) GetEntityIDsInState(ctx context.Context, entityType EntityType, flow Flow, endState EndState) ([]uint, error) {
	args := m.Called(ctx, entityType, flow, endState)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

func (m *MockRepository) CreatePayment(ctx context.Context, payment Payment) (uint, error) {
	args := m.Called(ctx, payment)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) CreatePaymentDetail(ctx context.Context, detail PaymentDetail) (uint, error) {
	args := m.Called(ctx, detail)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetPaymentsByIDs(ctx context.Context, ids []uint) ([]Payment, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Payment), args.Error(1)
}

func (m *MockRepository) GetPaymentByPubIndividualID(ctx context.Context, pubIndividualID int) (*Payment, error) {
	args := m.Called(ctx, pubIndividualID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) GetPaymentByCheckNumber(ctx context.Context, checkNumber int64) (*Payment, error) {
	args := m.Called(ctx, checkNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) GetPaymentDetails(ctx context.Context, paymentID uint) ([]PaymentDetail, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PaymentDetail), args.Error(1)
}

func (m *MockRepository) GetEmployeePaymentsInStates(ctx context.Context, employeeID uint, flow Flow, states []EndState) ([]Payment, error) {
	args := m.Called(ctx, employeeID, flow, states)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Payment), args.Error(1)
}

func (m *MockRepository) UpdatePaymentCheckStatus(ctx context.Context, paymentID uint, checkStatus string) error {
	args := m.Called(ctx, paymentID, checkStatus)
	return args.Error(0)
}

func (m *MockRepository) NextCheckNumber(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) AssignPaymentCheckNumber(ctx context.Context, paymentID uint, checkNumber int64) error {
	args := m.Called(ctx, paymentID, checkNumber)
	return args.Error(0)
}

func (m *MockRepository) GetEmployee(ctx context.Context, id uint) (*Employee, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Employee), args.Error(1)
}

func (m *MockRepository) GetEmployeeByCustomerNumber(ctx context.Context, customerNumber string) (*Employee, error) {
	args := m.Called(ctx, customerNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Employee), args.Error(1)
}

func (m *MockRepository) UpsertEmployee(ctx context.Context, employee Employee) (uint, error) {
	args := m.Called(ctx, employee)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetClaimByAbsenceID(ctx context.Context, fineosAbsenceID string) (*Claim, error) {
	args := m.Called(ctx, fineosAbsenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Claim), args.Error(1)
}

func (m *MockRepository) UpsertClaim(ctx context.Context, claim Claim) (uint, error) {
	args := m.Called(ctx, claim)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) UpsertAbsencePeriod(ctx context.Context, period AbsencePeriod) error {
	args := m.Called(ctx, period)
	return args.Error(0)
}

func (m *MockRepository) GetAbsencePeriodsForClaim(ctx context.Context, claimID uint) ([]AbsencePeriod, error) {
	args := m.Called(ctx, claimID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]AbsencePeriod), args.Error(1)
}

func (m *MockRepository) GetMaximumWeeklyBenefitAmounts(ctx context.Context) ([]MaximumWeeklyBenefitAmount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]MaximumWeeklyBenefitAmount), args.Error(1)
}

func (m *MockRepository) GetStagedClaimants(ctx context.Context, importRunID uint) ([]StagedClaimant, error) {
	args := m.Called(ctx, importRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StagedClaimant), args.Error(1)
}

func (m *MockRepository) GetStagedPaymentLines(ctx context.Context, importRunID uint) ([]StagedPaymentLine, error) {
	args := m.Called(ctx, importRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StagedPaymentLine), args.Error(1)
}

func (m *MockRepository) GetStagedPaymentDetails(ctx context.Context, importRunID uint) ([]StagedPaymentDetail, error) {
	args := m.Called(ctx, importRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StagedPaymentDetail), args.Error(1)
}

func (m *MockRepository) GetStagedClaimDetails(ctx context.Context, importRunID uint) ([]StagedClaimDetail, error) {
	args := m.Called(ctx, importRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StagedClaimDetail), args.Error(1)
}

func (m *MockRepository) GetStagedRequestedAbsences(ctx context.Context, importRunID uint) ([]StagedRequestedAbsence, error) {
	args := m.Called(ctx, importRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StagedRequestedAbsence), args.Error(1)
}

func (m *MockRepository) NextPubIndividualID(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) UpsertPubEft(ctx context.Context, eft PubEft) (uint, error) {
	args := m.Called(ctx, eft)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetPubEftForEmployeeAccount(ctx context.Context, employeeID uint, routingNumber, accountNumber string) (*PubEft, error) {
	args := m.Called(ctx, employeeID, routingNumber, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PubEft), args.Error(1)
}

func (m *MockRepository) GetPubEftByPubIndividualID(ctx context.Context, pubIndividualID int) (*PubEft, error) {
	args := m.Called(ctx, pubIndividualID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PubEft), args.Error(1)
}

func (m *MockRepository) GetPubEftsInPrenoteState(ctx context.Context, state PrenoteState) ([]PubEft, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PubEft), args.Error(1)
}

func (m *MockRepository) GetApprovedPubEftForEmployee(ctx context.Context, employeeID uint) (*PubEft, error) {
	args := m.Called(ctx, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PubEft), args.Error(1)
}

func (m *MockRepository) UpdatePubEftPrenoteState(ctx context.Context, pubEftID uint, state PrenoteState, sentAt time.Time) error {
	args := m.Called(ctx, pubEftID, state, sentAt)
	return args.Error(0)
}

func (m *MockRepository) CreatePubError(ctx context.Context, pubError PubError) (uint, error) {
	args := m.Called(ctx, pubError)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) CreateWritebackDetail(ctx context.Context, detail WritebackDetail) (uint, error) {
	args := m.Called(ctx, detail)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetPendingWritebackDetails(ctx context.Context) ([]WritebackDetail, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]WritebackDetail), args.Error(1)
}

func (m *MockRepository) MarkWritebackDetailsSent(ctx context.Context, ids []uint, sentAt time.Time) error {
	args := m.Called(ctx, ids, sentAt)
	return args.Error(0)
}
