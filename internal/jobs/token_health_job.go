package job

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/platform"
	"github.com/rovelin/postpilot/internal/repository"
)

const (
	expiryLookahead  = 7 * 24 * time.Hour
	warningThreshold = 3 * 24 * time.Hour
	rotationWindow   = 24 * time.Hour
	concurrencyLimit = 10
)

// CredentialRotator exchanges a refresh token for fresh material.
type CredentialRotator interface {
	RotateCredential(ctx context.Context, account *models.Account) error
}

// TokenHealthJob runs the two sweeps that keep account credentials
// usable: an hourly expiry warning pass and a daily full validation
// pass against the platform's introspection endpoint.
type TokenHealthJob struct {
	ar      repository.AccountRepository
	al      repository.AuditRepository
	pc      platform.Client
	rotator CredentialRotator
}

func NewTokenHealthJob(
	ar repository.AccountRepository,
	al repository.AuditRepository,
	pc platform.Client,
	rotator CredentialRotator) *TokenHealthJob {
	return &TokenHealthJob{
		ar:      ar,
		al:      al,
		pc:      pc,
		rotator: rotator,
	}
}

// SweepExpiring flags credentials expiring within the lookahead
// window. Accounts inside the warning threshold go to WARNING; already
// expired ones go to ERROR.
func (c *TokenHealthJob) SweepExpiring() {
	ctx := context.Background()
	now := time.Now()

	accounts, err := c.ar.ListExpiringWithin(ctx, now, now.Add(expiryLookahead))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, acc := range accounts {
		remaining := acc.Credential.ExpiresAt.Sub(now)

		switch {
		case remaining <= 0:
			if err := c.ar.SetStatus(ctx, acc.ID, models.AccountStatusError); err != nil {
				slog.Info(err.Error())
				continue
			}
			c.auditAccount(ctx, models.AuditActionTokenExpired, acc.ID, false, nil, "access token expired")

		case remaining <= warningThreshold:
			if err := c.ar.SetStatus(ctx, acc.ID, models.AccountStatusWarning); err != nil {
				slog.Info(err.Error())
				continue
			}
			detail, _ := json.Marshal(map[string]int{"days_left": int(remaining.Hours() / 24)})
			c.auditAccount(ctx, models.AuditActionTokenExpiring, acc.ID, true, detail, "")
		}
	}
}

// ValidateAll introspects every active account's token, plus errored
// accounts so they can recover once their token works again.
func (c *TokenHealthJob) ValidateAll() {
	ctx := context.Background()

	accounts, err := c.ar.ListByStatus(ctx, models.AccountStatusActive, models.AccountStatusError)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.Account) {
			defer wg.Done()
			defer func() { <-semaphore }()

			c.validate(ctx, acc)
		}(acc)
	}

	wg.Wait()
}

func (c *TokenHealthJob) validate(ctx context.Context, acc *models.Account) {
	intro, err := c.pc.Introspect(ctx, acc.Credential.AccessToken)

	// An API failure during validation is treated exactly like an
	// invalid token.
	if err != nil || !intro.Valid {
		message := "token introspection reported invalid"
		if err != nil {
			message = err.Error()
		}

		if serr := c.ar.SetStatus(ctx, acc.ID, models.AccountStatusError); serr != nil {
			slog.Info(serr.Error())
			return
		}
		c.auditAccount(ctx, models.AuditActionTokenValidate, acc.ID, false, nil, message)
		return
	}

	now := time.Now()
	if err := c.ar.UpdateCredentialExpiry(ctx, acc.ID, intro.ExpiresAt, now); err != nil {
		slog.Info(err.Error())
		return
	}

	if acc.Status == models.AccountStatusError {
		if err := c.ar.SetStatus(ctx, acc.ID, models.AccountStatusActive); err != nil {
			slog.Info(err.Error())
			return
		}
		c.auditAccount(ctx, models.AuditActionTokenRecovered, acc.ID, true, nil, "")
	}

	if c.rotator != nil && acc.Credential.RefreshToken != "" && time.Until(intro.ExpiresAt) < rotationWindow {
		if err := c.rotator.RotateCredential(ctx, acc); err != nil {
			slog.Info("unable to rotate credential", "account_id", acc.ID, "error", err.Error())
		}
	}
}

func (c *TokenHealthJob) auditAccount(ctx context.Context, action string, accountID int64, success bool, detail []byte, errMsg string) {
	entry := models.AuditLog{
		Action:       action,
		TargetType:   models.AuditTargetAccount,
		TargetID:     accountID,
		Success:      success,
		Detail:       detail,
		ErrorMessage: errMsg,
	}
	if _, err := c.al.Create(ctx, &entry); err != nil {
		slog.Info(err.Error())
	}
}
