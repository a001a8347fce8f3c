// Package twofa manages the account's TOTP second factor: status, setup,
// enable, disable. All calls require an authenticated session.
package twofa

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/debianrose/dumbchat/internal/gateway"
)

// Caller is the minimal gateway surface the service needs. Satisfied by
// gateway.Client.
type Caller interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// StatusResponse is the /api/2fa/status payload.
type StatusResponse struct {
	Success bool   `json:"success"`
	Enabled bool   `json:"enabled"`
	Error   string `json:"error,omitempty"`
}

// SetupResponse is the /api/2fa/setup payload: the shared secret plus a QR
// code (usually a data: URL) for authenticator apps.
type SetupResponse struct {
	Success   bool   `json:"success"`
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qrCodeUrl"`
	Error     string `json:"error,omitempty"`
}

// Service drives the 2FA management endpoints.
type Service struct {
	api    Caller
	logger *slog.Logger
}

// NewService builds a 2FA management service.
func NewService(log *slog.Logger, api Caller) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		api:    api,
		logger: log.With(slog.String("service", "twofa")),
	}
}

// Status reports whether 2FA is enabled for the account.
func (s *Service) Status(ctx context.Context) (bool, error) {
	var resp StatusResponse
	if err := s.api.Do(ctx, http.MethodGet, "/api/2fa/status", nil, &resp); err != nil {
		return false, err
	}
	if !resp.Success {
		return false, gateway.NewError(gateway.KindAuth, "2fa status", errors.New(orDefault(resp.Error, "request rejected")))
	}
	return resp.Enabled, nil
}

// Setup starts 2FA enrollment and returns the secret and QR code URL. The
// enrollment is not active until Enable confirms a code.
func (s *Service) Setup(ctx context.Context) (SetupResponse, error) {
	var resp SetupResponse
	if err := s.api.Do(ctx, http.MethodPost, "/api/2fa/setup", struct{}{}, &resp); err != nil {
		return SetupResponse{}, err
	}
	if !resp.Success {
		return SetupResponse{}, gateway.NewError(gateway.KindAuth, "2fa setup", errors.New(orDefault(resp.Error, "request rejected")))
	}
	s.logger.Info("2fa enrollment started")
	return resp, nil
}

// Enable confirms enrollment with a 6-digit code from the authenticator.
func (s *Service) Enable(ctx context.Context, code string) error {
	return s.confirm(ctx, "/api/2fa/enable", "2fa enable", code)
}

// Disable turns 2FA off, confirmed by a current code.
func (s *Service) Disable(ctx context.Context, code string) error {
	return s.confirm(ctx, "/api/2fa/disable", "2fa disable", code)
}

func (s *Service) confirm(ctx context.Context, path, op, code string) error {
	if len(code) != 6 {
		return gateway.NewError(gateway.KindValidation, op, errors.New("code must be 6 digits"))
	}
	var resp gateway.BasicResponse
	if err := s.api.Do(ctx, http.MethodPost, path, map[string]string{"token": code}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return gateway.NewError(gateway.KindAuth, op, errors.New(orDefault(resp.Error, "invalid code")))
	}
	s.logger.Info("2fa state changed", slog.String("op", op))
	return nil
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
