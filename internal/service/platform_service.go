package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	config "github.com/rovelin/postpilot/configs"
	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/repository"
	"golang.org/x/oauth2"
)

type PlatformService interface {
	RotateCredential(ctx context.Context, account *models.Account) error
}

// platformService handles the OAuth refresh grant against the
// platform's token endpoint and re-seals the new material at rest.
type platformService struct {
	cfg config.Config
	ar  repository.AccountRepository
}

func NewPlatformService(cfg config.Config, ar repository.AccountRepository) PlatformService {
	return &platformService{cfg: cfg, ar: ar}
}

func (s *platformService) RotateCredential(ctx context.Context, account *models.Account) error {
	if account.Credential == nil || account.Credential.RefreshToken == "" {
		return errors.New("account has no refresh token")
	}

	conf := &oauth2.Config{
		ClientID:     s.cfg.Platform.ClientID,
		ClientSecret: s.cfg.Platform.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: s.cfg.Platform.TokenURL,
		},
	}

	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: account.Credential.RefreshToken})
	token, err := source.Token()
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("refresh grant failed: %w", err)
	}

	err = s.ar.UpdateCredentialTokens(ctx, account.ID, token.AccessToken, token.RefreshToken, token.Expiry)
	if err != nil {
		return err
	}

	slog.Info("credential rotated", "account_id", account.ID, "expires_at", token.Expiry)
	return nil
}
