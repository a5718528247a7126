package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/notification"
)

var ann = Actor{UserID: 7, Email: "ann@example.com", Role: "employee"}

// startedForAnn starts an all-users campaign and returns ann's record.
func startedForAnn(t *testing.T, e *env) (*model.Campaign, *model.AttestationRecord) {
	t.Helper()
	seedUsers(e)
	e.db.addUser(model.User{ID: 1, Email: "admin@example.com", FirstName: "Ada", Role: model.RoleAdmin})
	e.db.addAsset(model.Asset{ID: 500, AssetTag: "LT-1", Status: "active", EmployeeEmail: "ann@example.com"})
	e.db.addAsset(model.Asset{ID: 501, AssetTag: "LT-2", Status: "active", EmployeeEmail: "bo@example.com"})
	c := e.draft(model.TargetAll, nil, nil)
	_, err := e.campaigns.StartCampaign(context.Background(), admin, c.ID)
	require.NoError(t, err)
	rec := e.db.recordFor(c.ID, ann.UserID)
	require.NotNil(t, rec)
	return e.db.campaigns[c.ID], rec
}

func validNewAsset() NewAssetInput {
	return NewAssetInput{
		AssetType: "laptop", Make: "Lenovo", Model: "X1", SerialNumber: "SN-9", AssetTag: "NEW-9",
		EmployeeFirstName: "Ann", EmployeeLastName: "Lee", EmployeeEmail: "ann@example.com", CompanyID: 3,
	}
}

func TestAttestAssetRecordsLedgerThenUpdatesRegistry(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)

	returned := testNow.Add(-24 * time.Hour)
	entry, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{
		Status: "Returned", Notes: "left at desk", ReturnedDate: &returned,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AssetStatusReturned, entry.AttestedStatus)
	assert.Equal(t, "active", entry.PreviousStatus)
	assert.Equal(t, &returned, entry.ReturnedDate)

	asset := e.db.assets[500]
	assert.Equal(t, model.AssetStatusReturned, asset.Status)
	require.NotNil(t, asset.ReturnedDate)

	stored := e.db.recordFor(rec.CampaignID, ann.UserID)
	assert.Equal(t, model.RecordStatusInProgress, stored.Status)
	assert.NotNil(t, stored.StartedAt)
	require.Len(t, e.db.attested, 1)
}

func TestAttestLedgerFailureLeavesRegistryUntouched(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)
	e.db.ledgerErr = errBoom

	returned := testNow.Add(-24 * time.Hour)
	_, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{
		Status: "returned", ReturnedDate: &returned,
	})
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, "active", e.db.assets[500].Status)
	assert.Nil(t, e.db.assets[500].ReturnedDate)
	assert.Empty(t, e.db.attested)
	assert.Equal(t, model.RecordStatusPending, e.db.recordFor(rec.CampaignID, ann.UserID).Status)
	for _, a := range e.db.audits {
		assert.NotEqual(t, "asset", a.EntityType)
	}
}

func TestAttestRegistryFailureKeepsLedgerEntry(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)
	e.db.assetErr = errBoom

	_, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "lost"})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "active", e.db.assets[500].Status)
	require.Len(t, e.db.attested, 1)
	assert.Equal(t, "lost", e.db.attested[0].AttestedStatus)

	e.db.assetErr = nil
	_, err = e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "lost"})
	require.NoError(t, err)
	assert.Equal(t, "lost", e.db.assets[500].Status)
	assert.Len(t, e.db.attested, 2)
}

func TestAttestReturnedWithoutDate(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)

	_, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "returned"})
	var verr *appErrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "returned_date", verr.Field)
	assert.Equal(t, "active", e.db.assets[500].Status)
	assert.Empty(t, e.db.attested)
}

func TestAttestInvalidStatus(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)

	_, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "stolen"})
	assert.True(t, appErrors.IsValidation(err))
}

func TestAttestOwnership(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)

	_, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 501, AttestInput{Status: "active"})
	assert.True(t, appErrors.IsPermission(err), "asset belongs to bo")

	bo := Actor{UserID: 9, Email: "bo@example.com"}
	_, err = e.records.AttestAsset(context.Background(), bo, rec.ID, 501, AttestInput{Status: "active"})
	assert.True(t, appErrors.IsPermission(err), "record belongs to ann")
}

func TestAttestUnchangedStatusKeepsRegistry(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)

	_, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "active"})
	require.NoError(t, err)
	assert.Len(t, e.db.attested, 1)
	assert.Equal(t, "active", e.db.assets[500].Status)
}

func TestAttestOnCancelledCampaign(t *testing.T) {
	e := newEnv()
	c, rec := startedForAnn(t, e)
	_, err := e.campaigns.CancelCampaign(context.Background(), admin, c.ID)
	require.NoError(t, err)

	_, err = e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "active"})
	assert.True(t, appErrors.IsInvalidState(err))
	_, err = e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	assert.True(t, appErrors.IsInvalidState(err))
	assert.Equal(t, model.RecordStatusPending, e.db.recordFor(c.ID, ann.UserID).Status)
}

func TestAddNewAssetValidation(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)

	in := validNewAsset()
	in.SerialNumber = " "
	_, err := e.records.AddNewAsset(context.Background(), ann, rec.ID, in)
	var verr *appErrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "serial_number", verr.Field)

	in = validNewAsset()
	in.CompanyID = 0
	_, err = e.records.AddNewAsset(context.Background(), ann, rec.ID, in)
	assert.True(t, appErrors.IsValidation(err))
	assert.Empty(t, e.db.newAssets)
}

func TestCompletePromotesNewAssetsAndNotifiesAdmins(t *testing.T) {
	e := newEnv()
	c, rec := startedForAnn(t, e)
	staged, err := e.records.AddNewAsset(context.Background(), ann, rec.ID, validNewAsset())
	require.NoError(t, err)

	res, err := e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, []int64{staged.ID}, res.Promotions.Succeeded)
	assert.Equal(t, model.RecordStatusCompleted, res.Record.Status)
	assert.NotNil(t, res.Record.CompletedAt)

	n := e.db.newAssets[staged.ID]
	require.NotNil(t, n.PromotedAssetID)
	promoted := e.db.assets[*n.PromotedAssetID]
	assert.Equal(t, "active", promoted.Status)
	assert.Equal(t, "NEW-9", promoted.AssetTag)

	notices := e.notifier.ofKind(notification.KindCompletion)
	require.Len(t, notices, 1)
	assert.Equal(t, "admin@example.com", notices[0].To)
	assert.Equal(t, c.ID, notices[0].CampaignID)
	assert.Equal(t, "Ann Lee", notices[0].EmployeeName)
}

func TestCompleteRetryDoesNotRepromote(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)
	_, err := e.records.AddNewAsset(context.Background(), ann, rec.ID, validNewAsset())
	require.NoError(t, err)

	_, err = e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	require.NoError(t, err)
	assetsAfterFirst := len(e.db.assets)
	completedAt := *e.db.recordFor(rec.CampaignID, ann.UserID).CompletedAt

	e.now = e.now.Add(time.Hour)
	res, err := e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCompleted)
	assert.Empty(t, res.Promotions.Succeeded)
	assert.Len(t, e.db.assets, assetsAfterFirst)
	assert.Equal(t, completedAt, *e.db.recordFor(rec.CampaignID, ann.UserID).CompletedAt)
	assert.Len(t, e.notifier.ofKind(notification.KindCompletion), 1)
}

func TestPromotionFailureIsolated(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)
	first, err := e.records.AddNewAsset(context.Background(), ann, rec.ID, validNewAsset())
	require.NoError(t, err)
	second := validNewAsset()
	second.AssetTag = "NEW-10"
	second.SerialNumber = "SN-10"
	other, err := e.records.AddNewAsset(context.Background(), ann, rec.ID, second)
	require.NoError(t, err)
	e.db.promoteErr[first.ID] = errBoom

	res, err := e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{other.ID}, res.Promotions.Succeeded)
	require.Len(t, res.Promotions.Failed, 1)
	assert.Equal(t, first.ID, res.Promotions.Failed[0].Item)
	assert.Equal(t, model.RecordStatusCompleted, res.Record.Status)

	// the retry picks up only the entry that failed
	delete(e.db.promoteErr, first.ID)
	res, err = e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCompleted)
	assert.Equal(t, []int64{first.ID}, res.Promotions.Succeeded)
}

func TestAttestAfterCompleteRejected(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)
	_, err := e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	require.NoError(t, err)

	_, err = e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "active"})
	assert.True(t, appErrors.IsInvalidState(err))
}

func TestRemindStampsRecord(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)
	e.now = testNow.Add(8 * 24 * time.Hour)

	require.NoError(t, e.records.RemindRecord(context.Background(), admin, rec.ID))
	stored := e.db.recordFor(rec.CampaignID, ann.UserID)
	require.NotNil(t, stored.ReminderSentAt)

	reminders := e.notifier.ofKind(notification.KindReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, 8, reminders[0].DaysElapsed)
}

func TestRemindSendFailureNotStamped(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)
	e.notifier.failTo["ann@example.com"] = true

	err := e.records.RemindRecord(context.Background(), admin, rec.ID)
	assert.True(t, appErrors.IsDependency(err))
	assert.Nil(t, e.db.recordFor(rec.CampaignID, ann.UserID).ReminderSentAt)
}

func TestEscalateGoesToManager(t *testing.T) {
	e := newEnv()
	_, rec := startedForAnn(t, e)

	require.NoError(t, e.records.EscalateRecord(context.Background(), admin, rec.ID))
	sent := e.notifier.ofKind(notification.KindEscalation)
	require.Len(t, sent, 1)
	assert.Equal(t, "boss@example.com", sent[0].To)
	assert.Equal(t, "ann@example.com", sent[0].EmployeeEmail)
	assert.NotNil(t, e.db.recordFor(rec.CampaignID, ann.UserID).EscalationSentAt)
}

func TestEscalateWithoutManager(t *testing.T) {
	e := newEnv()
	c, _ := startedForAnn(t, e)
	bo := e.db.recordFor(c.ID, 9)

	err := e.records.EscalateRecord(context.Background(), admin, bo.ID)
	var verr *appErrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "manager_email", verr.Field)
	assert.Nil(t, e.db.recordFor(c.ID, 9).EscalationSentAt)
	assert.Empty(t, e.notifier.ofKind(notification.KindEscalation))
}

func TestBulkRemindSkipsCompleted(t *testing.T) {
	e := newEnv()
	c, rec := startedForAnn(t, e)
	_, err := e.records.CompleteAttestation(context.Background(), ann, rec.ID)
	require.NoError(t, err)

	res, err := e.records.BulkRemind(context.Background(), admin, c.ID)
	require.NoError(t, err)
	bo := e.db.recordFor(c.ID, 9)
	assert.Len(t, res.Succeeded, 2)
	assert.Contains(t, res.Succeeded, bo.ID)
	assert.NotContains(t, res.Succeeded, rec.ID)
}

func TestBulkEscalateOnlyOverdue(t *testing.T) {
	e := newEnv()
	c, rec := startedForAnn(t, e)

	res, err := e.records.BulkEscalate(context.Background(), admin, c.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Succeeded, "nothing is overdue on day zero")

	e.now = testNow.Add(11 * 24 * time.Hour)
	res, err = e.records.BulkEscalate(context.Background(), admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{rec.ID}, res.Succeeded)
	require.Len(t, res.Failed, 2, "bo and the admin have no manager")
	for _, f := range res.Failed {
		assert.True(t, appErrors.IsValidation(f.Err))
	}
}

func TestBulkRequiresActiveCampaign(t *testing.T) {
	e := newEnv()
	c := e.draft(model.TargetAll, nil, nil)
	_, err := e.records.BulkRemind(context.Background(), admin, c.ID)
	assert.True(t, appErrors.IsInvalidState(err))
}

func TestOverdueScenario(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &model.Campaign{StartDate: start, EscalationDays: 10}
	pending := &model.AttestationRecord{Status: model.RecordStatusPending}
	done := &model.AttestationRecord{Status: model.RecordStatusCompleted}

	at := start.Add(12 * 24 * time.Hour)
	got := ComputeOverdue(pending, c, at)
	assert.Equal(t, OverdueStatus{DaysElapsed: 12, DaysLate: 2, IsOverdue: true}, got)

	assert.False(t, ComputeOverdue(done, c, at).IsOverdue)
	assert.False(t, ComputeOverdue(pending, c, start.Add(10*24*time.Hour)).IsOverdue, "day ten is not late yet")
	assert.Equal(t, 0, DaysElapsed(c, start.Add(-time.Hour)))
	assert.Equal(t, 0, DaysElapsed(c, start.Add(23*time.Hour)))
}

func TestListMyAttestationsAndDetails(t *testing.T) {
	e := newEnv()
	c, rec := startedForAnn(t, e)
	_, err := e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "damaged"})
	require.NoError(t, err)
	_, err = e.records.AttestAsset(context.Background(), ann, rec.ID, 500, AttestInput{Status: "active"})
	require.NoError(t, err)

	mine, err := e.records.ListMyAttestations(context.Background(), ann)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c.ID, mine[0].Campaign.ID)

	d, err := e.records.GetRecordDetails(context.Background(), ann, rec.ID)
	require.NoError(t, err)
	assert.Len(t, d.Assets, 1)
	assert.Len(t, d.Attested, 2)
	assert.Equal(t, "active", d.Latest[500].AttestedStatus)

	_, err = e.records.GetRecordDetails(context.Background(), admin, rec.ID)
	assert.NoError(t, err)
	_, err = e.records.GetRecordDetails(context.Background(), Actor{UserID: 9, Email: "bo@example.com"}, rec.ID)
	assert.True(t, appErrors.IsPermission(err))
}

func TestListCampaignRecordsIncludesUsers(t *testing.T) {
	e := newEnv()
	c, _ := startedForAnn(t, e)
	e.now = testNow.Add(12 * 24 * time.Hour)

	views, err := e.records.ListCampaignRecords(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	for _, v := range views {
		require.NotNil(t, v.User)
		assert.True(t, v.Overdue.IsOverdue)
		assert.Equal(t, 2, v.Overdue.DaysLate)
	}
}
