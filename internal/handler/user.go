package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/platformx/platformx/internal/handler/dto"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/service"
)

// UserService is the sign-in and profile logic UserHandler serves.
type UserService interface {
	GenerateOTP(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, in service.VerifyOTPInput) (*service.Session, error)
	Me(ctx context.Context, userID string) (*service.Profile, error)
	UpdateProfile(ctx context.Context, userID, name string) (*model.User, error)
}

// UserHandler handles OTP sign-in and the caller's profile.
type UserHandler struct {
	svc    UserService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// GenerateOTP handles POST /api/v1/auth/generate-otp.
func (h *UserHandler) GenerateOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateOTPRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	hash, err := h.svc.GenerateOTP(r.Context(), req.Email)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.GenerateOTPResponse{Hash: hash})
}

// VerifyOTP handles POST /api/v1/auth/verify-otp.
func (h *UserHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyOTPRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	session, err := h.svc.VerifyOTP(r.Context(), service.VerifyOTPInput{
		Email:         req.Email,
		OTP:           req.OTP,
		Hash:          req.Hash,
		WalletAddress: req.WalletAddress,
		Name:          req.Name,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Me handles GET /api/v1/user/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	profile, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateMe handles PATCH /api/v1/user/me.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
