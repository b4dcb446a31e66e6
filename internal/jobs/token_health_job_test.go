package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	statuses map[int64]string
}

func newStubAccountRepo(accounts ...*models.Account) *stubAccountRepo {
	r := &stubAccountRepo{
		accounts: make(map[int64]*models.Account),
		statuses: make(map[int64]string),
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
		r.statuses[a.ID] = a.Status
	}
	return r
}

func (r *stubAccountRepo) status(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

func (r *stubAccountRepo) Create(ctx context.Context, tx *sql.Tx, account *models.Account, cred *models.Credential) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *stubAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.GetWithCredential(ctx, id)
}

func (r *stubAccountRepo) GetWithCredential(ctx context.Context, id int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id], nil
}

func (r *stubAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return false, nil
}

func (r *stubAccountRepo) ListExpiringWithin(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Account
	for _, a := range r.accounts {
		if a.Credential != nil && a.Credential.ExpiresAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *stubAccountRepo) ListByStatus(ctx context.Context, statuses ...string) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Account
	for _, a := range r.accounts {
		for _, s := range statuses {
			if r.statuses[a.ID] == s {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (r *stubAccountRepo) SetStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	return nil
}

func (r *stubAccountRepo) UpdateCredentialExpiry(ctx context.Context, accountID int64, expiresAt, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[accountID]; ok && a.Credential != nil {
		a.Credential.ExpiresAt = expiresAt
		a.Credential.LastVerifiedAt = sql.NullTime{Time: verifiedAt, Valid: true}
	}
	return nil
}

func (r *stubAccountRepo) UpdateCredentialTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}

func (r *stubAccountRepo) Remove(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}

type stubAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *stubAuditRepo) Create(ctx context.Context, entry *models.AuditLog) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return int64(len(r.entries)), nil
}

func (r *stubAuditRepo) ListByTarget(ctx context.Context, targetType string, targetID int64) ([]*models.AuditLog, error) {
	return nil, nil
}

func (r *stubAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *stubAuditRepo) byAction(action string) []*models.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type stubIntrospector struct {
	mu      sync.Mutex
	results map[string]*transfer.Introspection
	errs    map[string]error
}

func (p *stubIntrospector) CreatePost(ctx context.Context, accessToken, caption string, mediaURLs []string) (*transfer.CreatePostResult, error) {
	return nil, errors.New("not implemented")
}

func (p *stubIntrospector) DeletePost(ctx context.Context, accessToken, externalID string) error {
	return errors.New("not implemented")
}

func (p *stubIntrospector) Introspect(ctx context.Context, accessToken string) (*transfer.Introspection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[accessToken]; ok {
		return nil, err
	}
	if intro, ok := p.results[accessToken]; ok {
		return intro, nil
	}
	return &transfer.Introspection{Valid: true, ExpiresAt: time.Now().Add(60 * 24 * time.Hour)}, nil
}

type stubRotator struct {
	mu      sync.Mutex
	rotated []int64
	err     error
}

func (r *stubRotator) RotateCredential(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rotated = append(r.rotated, account.ID)
	return nil
}

func account(id int64, status, token string, expiresIn time.Duration) *models.Account {
	return &models.Account{
		ID:     id,
		UserID: 1,
		Status: status,
		Credential: &models.Credential{
			AccountID:    id,
			AccessToken:  token,
			RefreshToken: "refresh-" + token,
			ExpiresAt:    time.Now().Add(expiresIn),
		},
	}
}

func TestSweepExpiring_WarnsInsideThreshold(t *testing.T) {
	ar := newStubAccountRepo(account(1, models.AccountStatusActive, "tok-1", 2*24*time.Hour+time.Hour))
	al := &stubAuditRepo{}
	NewTokenHealthJob(ar, al, &stubIntrospector{}, nil).SweepExpiring()

	assert.Equal(t, models.AccountStatusWarning, ar.status(1))

	audits := al.byAction(models.AuditActionTokenExpiring)
	require.Len(t, audits, 1)
	var detail map[string]int
	require.NoError(t, json.Unmarshal(audits[0].Detail, &detail))
	assert.Equal(t, 2, detail["days_left"])
}

func TestSweepExpiring_ExpiredGoesToError(t *testing.T) {
	ar := newStubAccountRepo(account(1, models.AccountStatusActive, "tok-1", -time.Hour))
	al := &stubAuditRepo{}
	NewTokenHealthJob(ar, al, &stubIntrospector{}, nil).SweepExpiring()

	assert.Equal(t, models.AccountStatusError, ar.status(1))
	audits := al.byAction(models.AuditActionTokenExpired)
	require.Len(t, audits, 1)
	assert.False(t, audits[0].Success)
}

func TestSweepExpiring_OutsideThresholdUntouched(t *testing.T) {
	ar := newStubAccountRepo(account(1, models.AccountStatusActive, "tok-1", 5*24*time.Hour))
	NewTokenHealthJob(ar, &stubAuditRepo{}, &stubIntrospector{}, nil).SweepExpiring()

	assert.Equal(t, models.AccountStatusActive, ar.status(1))
}

func TestValidateAll_InvalidTokenGoesToError(t *testing.T) {
	ar := newStubAccountRepo(account(1, models.AccountStatusActive, "tok-1", 30*24*time.Hour))
	al := &stubAuditRepo{}
	pc := &stubIntrospector{results: map[string]*transfer.Introspection{
		"tok-1": {Valid: false},
	}}
	NewTokenHealthJob(ar, al, pc, nil).ValidateAll()

	assert.Equal(t, models.AccountStatusError, ar.status(1))
	audits := al.byAction(models.AuditActionTokenValidate)
	require.Len(t, audits, 1)
	assert.False(t, audits[0].Success)
}

func TestValidateAll_APIFailureTreatedAsInvalid(t *testing.T) {
	ar := newStubAccountRepo(account(1, models.AccountStatusActive, "tok-1", 30*24*time.Hour))
	al := &stubAuditRepo{}
	pc := &stubIntrospector{errs: map[string]error{"tok-1": errors.New("connection refused")}}
	NewTokenHealthJob(ar, al, pc, nil).ValidateAll()

	assert.Equal(t, models.AccountStatusError, ar.status(1))
	audits := al.byAction(models.AuditActionTokenValidate)
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].ErrorMessage, "connection refused")
}

func TestValidateAll_RecoversErroredAccount(t *testing.T) {
	acc := account(1, models.AccountStatusError, "tok-1", -time.Hour)
	ar := newStubAccountRepo(acc)
	al := &stubAuditRepo{}
	newExpiry := time.Now().Add(55 * 24 * time.Hour)
	pc := &stubIntrospector{results: map[string]*transfer.Introspection{
		"tok-1": {Valid: true, ExpiresAt: newExpiry},
	}}
	NewTokenHealthJob(ar, al, pc, nil).ValidateAll()

	assert.Equal(t, models.AccountStatusActive, ar.status(1))
	assert.Len(t, al.byAction(models.AuditActionTokenRecovered), 1)
	assert.WithinDuration(t, newExpiry, acc.Credential.ExpiresAt, time.Second)
	assert.True(t, acc.Credential.LastVerifiedAt.Valid)
}

func TestValidateAll_RotatesNearExpiry(t *testing.T) {
	ar := newStubAccountRepo(account(1, models.AccountStatusActive, "tok-1", 30*24*time.Hour))
	rotator := &stubRotator{}
	pc := &stubIntrospector{results: map[string]*transfer.Introspection{
		"tok-1": {Valid: true, ExpiresAt: time.Now().Add(6 * time.Hour)},
	}}
	NewTokenHealthJob(ar, &stubAuditRepo{}, pc, rotator).ValidateAll()

	assert.Equal(t, []int64{1}, rotator.rotated)
}

func TestValidateAll_RotationFailureIsNonFatal(t *testing.T) {
	ar := newStubAccountRepo(account(1, models.AccountStatusActive, "tok-1", 30*24*time.Hour))
	rotator := &stubRotator{err: errors.New("refresh grant rejected")}
	pc := &stubIntrospector{results: map[string]*transfer.Introspection{
		"tok-1": {Valid: true, ExpiresAt: time.Now().Add(6 * time.Hour)},
	}}
	NewTokenHealthJob(ar, &stubAuditRepo{}, pc, rotator).ValidateAll()

	assert.Equal(t, models.AccountStatusActive, ar.status(1))
}
