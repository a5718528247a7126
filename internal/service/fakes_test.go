package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/kvstore"
	"github.com/unclebandit/attestation-service/internal/metrics"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/notification"
	"github.com/unclebandit/attestation-service/internal/repository"
)

var errBoom = errors.New("boom")

// fakeDB is an in-memory stand-in for every table the services touch.
type fakeDB struct {
	mu     sync.Mutex
	nextID int64

	campaigns map[int64]*model.Campaign
	records   map[int64]*model.AttestationRecord
	invites   map[int64]*model.PendingInvite
	attested  []*model.AttestedAsset
	newAssets map[int64]*model.NewAsset
	users     map[int64]model.User
	companies map[int64]bool
	assets    map[int64]*model.Asset
	audits    []model.AuditEntry

	recordErr     map[int64]error // by user id
	promoteErr    map[int64]error // by new asset id
	ledgerErr     error
	assetErr      error
	activateCalls int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		nextID:     100,
		campaigns:  map[int64]*model.Campaign{},
		records:    map[int64]*model.AttestationRecord{},
		invites:    map[int64]*model.PendingInvite{},
		newAssets:  map[int64]*model.NewAsset{},
		users:      map[int64]model.User{},
		companies:  map[int64]bool{},
		assets:     map[int64]*model.Asset{},
		recordErr:  map[int64]error{},
		promoteErr: map[int64]error{},
	}
}

func (f *fakeDB) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeDB) addUser(u model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeDB) addAsset(a model.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[a.ID] = &a
}

func (f *fakeDB) addCampaign(c model.Campaign) *model.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = f.id()
	}
	f.campaigns[c.ID] = &c
	return &c
}

func (f *fakeDB) recordFor(campaignID, userID int64) *model.AttestationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.CampaignID == campaignID && r.UserID == userID {
			cp := *r
			return &cp
		}
	}
	return nil
}

func (f *fakeDB) countRecords(campaignID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.CampaignID == campaignID {
			n++
		}
	}
	return n
}

func (f *fakeDB) countInvites(campaignID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, inv := range f.invites {
		if inv.CampaignID == campaignID {
			n++
		}
	}
	return n
}

// ---- campaigns ----

type fakeCampaigns struct{ *fakeDB }

func (f fakeCampaigns) Create(ctx context.Context, c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.id()
	cp := *c
	f.campaigns[c.ID] = &cp
	return nil
}

func (f fakeCampaigns) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (f fakeCampaigns) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Campaign
	for _, c := range f.campaigns {
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset > total {
		return []*model.Campaign{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (f fakeCampaigns) Update(ctx context.Context, c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.campaigns[c.ID]; !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	cp := *c
	f.campaigns[c.ID] = &cp
	return nil
}

func (f fakeCampaigns) Activate(ctx context.Context, id int64, startDate time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateCalls++
	c, ok := f.campaigns[id]
	if !ok || c.Status != model.CampaignStatusDraft {
		return false, nil
	}
	c.Status = model.CampaignStatusActive
	c.StartDate = startDate
	return true, nil
}

func (f fakeCampaigns) TransitionStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (f fakeCampaigns) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.campaigns[id]; !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(f.campaigns, id)
	for rid, r := range f.records {
		if r.CampaignID == id {
			delete(f.records, rid)
		}
	}
	for iid, inv := range f.invites {
		if inv.CampaignID == id {
			delete(f.invites, iid)
		}
	}
	return nil
}

// ---- records ----

type fakeRecords struct{ *fakeDB }

func (f fakeRecords) Create(ctx context.Context, campaignID, userID int64) (*model.AttestationRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordErr[userID]; err != nil {
		return nil, false, err
	}
	for _, r := range f.records {
		if r.CampaignID == campaignID && r.UserID == userID {
			cp := *r
			return &cp, false, nil
		}
	}
	r := &model.AttestationRecord{ID: f.id(), CampaignID: campaignID, UserID: userID,
		Status: model.RecordStatusPending, CreatedAt: time.Now()}
	f.records[r.ID] = r
	cp := *r
	return &cp, true, nil
}

func (f fakeRecords) GetByID(ctx context.Context, id int64) (*model.AttestationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, appErrors.NewRecordNotFound(id)
	}
	cp := *r
	return &cp, nil
}

func (f fakeRecords) list(match func(*model.AttestationRecord) bool) []*model.AttestationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.AttestationRecord{}
	for _, r := range f.records {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f fakeRecords) ListByCampaign(ctx context.Context, campaignID int64) ([]*model.AttestationRecord, error) {
	return f.list(func(r *model.AttestationRecord) bool { return r.CampaignID == campaignID }), nil
}

func (f fakeRecords) ListByUser(ctx context.Context, userID int64) ([]*model.AttestationRecord, error) {
	return f.list(func(r *model.AttestationRecord) bool { return r.UserID == userID }), nil
}

func (f fakeRecords) MarkInProgress(ctx context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.Status != model.RecordStatusPending {
		return false, nil
	}
	r.Status = model.RecordStatusInProgress
	r.StartedAt = &at
	return true, nil
}

func (f fakeRecords) MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.Status == model.RecordStatusCompleted {
		return false, nil
	}
	r.Status = model.RecordStatusCompleted
	r.CompletedAt = &at
	return true, nil
}

func (f fakeRecords) SetReminderSent(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return appErrors.NewRecordNotFound(id)
	}
	r.ReminderSentAt = &at
	return nil
}

func (f fakeRecords) SetEscalationSent(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return appErrors.NewRecordNotFound(id)
	}
	r.EscalationSentAt = &at
	return nil
}

// ---- invites ----

type fakeInvites struct{ *fakeDB }

func (f fakeInvites) Create(ctx context.Context, inv *model.PendingInvite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invites {
		if existing.CampaignID == inv.CampaignID && strings.EqualFold(existing.EmployeeEmail, inv.EmployeeEmail) {
			return errors.New("duplicate invite")
		}
	}
	inv.ID = f.id()
	cp := *inv
	f.invites[inv.ID] = &cp
	return nil
}

func (f fakeInvites) GetByID(ctx context.Context, id int64) (*model.PendingInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok {
		return nil, appErrors.NewNotFound("pending invite", id)
	}
	cp := *inv
	return &cp, nil
}

func (f fakeInvites) GetByToken(ctx context.Context, token string) (*model.PendingInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invites {
		if inv.InviteToken == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("pending invite", "token")
}

func (f fakeInvites) list(match func(*model.PendingInvite) bool) []*model.PendingInvite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.PendingInvite{}
	for _, inv := range f.invites {
		if match(inv) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f fakeInvites) ListByCampaign(ctx context.Context, campaignID int64) ([]*model.PendingInvite, error) {
	return f.list(func(inv *model.PendingInvite) bool { return inv.CampaignID == campaignID }), nil
}

func (f fakeInvites) ListPendingByEmail(ctx context.Context, email string) ([]*model.PendingInvite, error) {
	return f.list(func(inv *model.PendingInvite) bool {
		return inv.RegisteredAt == nil && strings.EqualFold(inv.EmployeeEmail, email)
	}), nil
}

func (f fakeInvites) MarkSent(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok {
		return appErrors.NewNotFound("pending invite", id)
	}
	inv.InviteSentAt = &at
	return nil
}

func (f fakeInvites) MarkRegistered(ctx context.Context, id, recordID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok || inv.RegisteredAt != nil {
		return false, nil
	}
	inv.RegisteredAt = &at
	inv.ConvertedRecordID = &recordID
	return true, nil
}

// ---- ledger ----

type fakeLedger struct{ *fakeDB }

func (f fakeLedger) AddAttestedAsset(ctx context.Context, a *model.AttestedAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledgerErr != nil {
		return f.ledgerErr
	}
	a.ID = f.id()
	cp := *a
	f.attested = append(f.attested, &cp)
	return nil
}

func (f fakeLedger) ListAttestedAssets(ctx context.Context, recordID int64) ([]*model.AttestedAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.AttestedAsset{}
	for _, a := range f.attested {
		if a.AttestationRecordID == recordID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeLedger) AddNewAsset(ctx context.Context, n *model.NewAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = f.id()
	cp := *n
	f.newAssets[n.ID] = &cp
	return nil
}

func (f fakeLedger) ListNewAssets(ctx context.Context, recordID int64) ([]*model.NewAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.NewAsset{}
	for _, n := range f.newAssets {
		if n.AttestationRecordID == recordID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeLedger) PromoteNewAsset(ctx context.Context, newAssetID int64, at time.Time) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.promoteErr[newAssetID]; err != nil {
		return 0, false, err
	}
	n, ok := f.newAssets[newAssetID]
	if !ok {
		return 0, false, appErrors.NewNotFound("new asset", newAssetID)
	}
	if n.PromotedAssetID != nil {
		return *n.PromotedAssetID, false, nil
	}
	a := &model.Asset{
		ID: f.id(), AssetType: n.AssetType, Make: n.Make, Model: n.Model, SerialNumber: n.SerialNumber,
		AssetTag: n.AssetTag, Status: "active", EmployeeFirstName: n.EmployeeFirstName,
		EmployeeLastName: n.EmployeeLastName, EmployeeEmail: n.EmployeeEmail, CompanyID: n.CompanyID,
	}
	f.assets[a.ID] = a
	n.PromotedAt = &at
	n.PromotedAssetID = &a.ID
	return a.ID, true, nil
}

// ---- registry ----

type fakeUsers struct{ *fakeDB }

func (f fakeUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, appErrors.NewNotFound("user", id)
	}
	return &u, nil
}

func (f fakeUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, appErrors.NewNotFound("user", email)
}

func (f fakeUsers) listSorted(match func(model.User) bool) []model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.users {
		if match(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f fakeUsers) ListAll(ctx context.Context) ([]model.User, error) {
	return f.listSorted(func(model.User) bool { return true }), nil
}

func (f fakeUsers) ListByRole(ctx context.Context, role string) ([]model.User, error) {
	return f.listSorted(func(u model.User) bool { return u.Role == role }), nil
}

type fakeAssets struct{ *fakeDB }

func (f fakeAssets) GetByID(ctx context.Context, id int64) (*model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return nil, appErrors.NewNotFound("asset", id)
	}
	cp := *a
	return &cp, nil
}

func (f fakeAssets) ListByOwnerEmail(ctx context.Context, email string) ([]model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Asset{}
	for _, a := range f.assets {
		if strings.EqualFold(a.EmployeeEmail, email) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeAssets) ListOwners(ctx context.Context, companyIDs []int64) ([]model.AssetOwner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := map[int64]bool{}
	for _, id := range companyIDs {
		wanted[id] = true
	}
	ids := make([]int64, 0, len(f.assets))
	for id := range f.assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []model.AssetOwner{}
	seen := map[string]bool{}
	for _, id := range ids {
		a := f.assets[id]
		if len(wanted) > 0 && !wanted[a.CompanyID] {
			continue
		}
		key := strings.ToLower(a.EmployeeEmail)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.AssetOwner{Email: a.EmployeeEmail, FirstName: a.EmployeeFirstName, LastName: a.EmployeeLastName})
	}
	return out, nil
}

func (f fakeAssets) UpdateStatus(ctx context.Context, id int64, status string, returnedDate *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assetErr != nil {
		return f.assetErr
	}
	a, ok := f.assets[id]
	if !ok {
		return appErrors.NewNotFound("asset", id)
	}
	a.Status = status
	a.ReturnedDate = returnedDate
	return nil
}

func (f fakeAssets) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []int64{}
	for _, id := range ids {
		if f.companies[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeAudit struct{ *fakeDB }

func (f fakeAudit) Log(ctx context.Context, e *model.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, *e)
	return nil
}

var (
	_ repository.CampaignRepositoryInterface = fakeCampaigns{}
	_ repository.RecordRepositoryInterface   = fakeRecords{}
	_ repository.InviteRepositoryInterface   = fakeInvites{}
	_ repository.LedgerRepositoryInterface   = fakeLedger{}
	_ repository.UserRegistryInterface       = fakeUsers{}
	_ repository.AssetRegistryInterface      = fakeAssets{}
	_ repository.CompanyRegistryInterface    = fakeAssets{}
	_ repository.AuditSink                   = fakeAudit{}
)

// ---- notifications ----

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
	// sends to these addresses fail
	failTo  map[string]bool
	failAll bool
}

func (n *fakeNotifier) Send(ctx context.Context, msg notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll || n.failTo[msg.To] {
		return appErrors.NewDependency("email queue", errBoom)
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) ofKind(k notification.Kind) []notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.Notification
	for _, m := range n.sent {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// ---- wiring ----

var testNow = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type env struct {
	db        *fakeDB
	notifier  *fakeNotifier
	now       time.Time
	campaigns *CampaignService
	records   *RecordService
	invites   *InviteService
}

func newEnv() *env {
	db := newFakeDB()
	e := &env{db: db, notifier: &fakeNotifier{failTo: map[string]bool{}}, now: testNow}
	clockFn := func() time.Time { return e.now }
	m := metrics.NewUnregistered()
	log := zap.NewNop()

	e.campaigns = &CampaignService{
		CampaignRepo: fakeCampaigns{db},
		RecordRepo:   fakeRecords{db},
		InviteRepo:   fakeInvites{db},
		Resolver:     &Resolver{Users: fakeUsers{db}, Companies: fakeAssets{db}, Assets: fakeAssets{db}},
		Notifier:     e.notifier,
		Audit:        fakeAudit{db},
		StartLocks:   kvstore.NewMemoryStore(clockFn),
		Metrics:      m,
		Log:          log,
		Now:          clockFn,

		Concurrency:           4,
		StartLockTTL:          time.Minute,
		AppBaseURL:            "https://assets.example.com",
		DefaultReminderDays:   7,
		DefaultEscalationDays: 10,
	}
	e.records = &RecordService{
		CampaignRepo: fakeCampaigns{db},
		RecordRepo:   fakeRecords{db},
		LedgerRepo:   fakeLedger{db},
		Users:        fakeUsers{db},
		Assets:       fakeAssets{db},
		Notifier:     e.notifier,
		Audit:        fakeAudit{db},
		Metrics:      m,
		Log:          log,
		Now:          clockFn,
		Concurrency:  4,
		AppBaseURL:   "https://assets.example.com",
	}
	e.invites = &InviteService{
		CampaignRepo: fakeCampaigns{db},
		RecordRepo:   fakeRecords{db},
		InviteRepo:   fakeInvites{db},
		Users:        fakeUsers{db},
		Notifier:     e.notifier,
		Audit:        fakeAudit{db},
		Metrics:      m,
		Log:          log,
		Now:          clockFn,
		AppBaseURL:   "https://assets.example.com",
	}
	return e
}

var admin = Actor{UserID: 1, Email: "admin@example.com", Role: model.RoleAdmin}

func (e *env) draft(target string, users, companies []int64) *model.Campaign {
	return e.db.addCampaign(model.Campaign{
		Name: "Q2 hardware", Description: "Confirm your devices", StartDate: e.now,
		Status: model.CampaignStatusDraft, ReminderDays: 7, EscalationDays: 10,
		TargetType: target, TargetUserIDs: pq.Int64Array(users), TargetCompanyIDs: pq.Int64Array(companies),
		CreatedBy: admin.Email, CreatedAt: e.now,
	})
}
