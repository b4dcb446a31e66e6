package queue

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/transfer"
)

type fakePostRepo struct {
	mu    sync.Mutex
	posts map[int64]*models.ScheduledPost
}

func newFakePostRepo(posts ...*models.ScheduledPost) *fakePostRepo {
	r := &fakePostRepo{posts: make(map[int64]*models.ScheduledPost)}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post.ID = int64(len(r.posts) + 1)
	r.posts[post.ID] = post
	return post.ID, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	return nil, nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	return ok && post.UserID == userID, nil
}

func (r *fakePostRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	return nil, nil
}

func (r *fakePostRepo) UpdateStatusIf(ctx context.Context, id int64, to string, from ...string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if post.Status == f {
			post.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePostRepo) MarkProcessing(ctx context.Context, id int64) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return 0, false, nil
	}
	switch post.Status {
	case models.PostStatusPending, models.PostStatusScheduled, models.PostStatusProcessing, models.PostStatusFailed:
		post.Status = models.PostStatusProcessing
		post.Attempts++
		return post.Attempts, true, nil
	}
	return 0, false, nil
}

func (r *fakePostRepo) MarkCompleted(ctx context.Context, id int64, externalID, permalink string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusProcessing {
		return nil
	}
	post.Status = models.PostStatusCompleted
	post.ExternalID = externalID
	post.Permalink = permalink
	post.PublishedAt = sql.NullTime{Time: publishedAt, Valid: true}
	return nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, id int64, message string, detail []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusProcessing {
		return nil
	}
	post.Status = models.PostStatusFailed
	post.LastError = message
	post.LastErrorInfo = detail
	return nil
}

func (r *fakePostRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, post := range r.posts {
		counts[post.Status]++
	}
	return counts, nil
}

func (r *fakePostRepo) CountOutcomes(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	return r.CountByStatus(ctx)
}

func (r *fakePostRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	statuses map[int64]string
	expiries map[int64]time.Time
}

func newFakeAccountRepo(accounts ...*models.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{
		accounts: make(map[int64]*models.Account),
		statuses: make(map[int64]string),
		expiries: make(map[int64]time.Time),
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
		r.statuses[a.ID] = a.Status
	}
	return r
}

func (r *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, account *models.Account, cred *models.Credential) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.GetWithCredential(ctx, id)
}

func (r *fakeAccountRepo) GetWithCredential(ctx context.Context, id int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return account, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	return ok && account.UserID == userID, nil
}

func (r *fakeAccountRepo) ListExpiringWithin(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
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

func (r *fakeAccountRepo) ListByStatus(ctx context.Context, statuses ...string) ([]*models.Account, error) {
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

func (r *fakeAccountRepo) SetStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	return nil
}

func (r *fakeAccountRepo) UpdateCredentialExpiry(ctx context.Context, accountID int64, expiresAt, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiries[accountID] = expiresAt
	if a, ok := r.accounts[accountID]; ok && a.Credential != nil {
		a.Credential.ExpiresAt = expiresAt
		a.Credential.LastVerifiedAt = sql.NullTime{Time: verifiedAt, Valid: true}
	}
	return nil
}

func (r *fakeAccountRepo) UpdateCredentialTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

type fakePublishedRepo struct {
	mu   sync.Mutex
	rows map[int64]*models.PublishedPost
}

func newFakePublishedRepo(rows ...*models.PublishedPost) *fakePublishedRepo {
	r := &fakePublishedRepo{rows: make(map[int64]*models.PublishedPost)}
	for _, row := range rows {
		r.rows[row.PostID] = row
	}
	return r
}

func (r *fakePublishedRepo) Create(ctx context.Context, pp *models.PublishedPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[pp.PostID] = pp
	return nil
}

func (r *fakePublishedRepo) GetByPostID(ctx context.Context, postID int64) (*models.PublishedPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[postID]
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (r *fakePublishedRepo) Remove(ctx context.Context, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, postID)
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *fakeAuditRepo) Create(ctx context.Context, entry *models.AuditLog) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return int64(len(r.entries)), nil
}

func (r *fakeAuditRepo) ListByTarget(ctx context.Context, targetType string, targetID int64) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeAuditRepo) byAction(action string) []*models.AuditLog {
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

type fakePlatform struct {
	mu            sync.Mutex
	createErr     error
	createResult  *transfer.CreatePostResult
	deleteErr     map[string]error
	deleted       []string
	introspection *transfer.Introspection
	introspectErr error
}

func (p *fakePlatform) CreatePost(ctx context.Context, accessToken, caption string, mediaURLs []string) (*transfer.CreatePostResult, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.createResult != nil {
		return p.createResult, nil
	}
	return &transfer.CreatePostResult{ExternalID: "ext-1", Permalink: "https://platform.example/p/ext-1"}, nil
}

func (p *fakePlatform) DeletePost(ctx context.Context, accessToken, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.deleteErr[externalID]; ok {
		return err
	}
	p.deleted = append(p.deleted, externalID)
	return nil
}

func (p *fakePlatform) Introspect(ctx context.Context, accessToken string) (*transfer.Introspection, error) {
	if p.introspectErr != nil {
		return nil, p.introspectErr
	}
	return p.introspection, nil
}
