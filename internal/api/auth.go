package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hallmont/identity-core/internal/audit"
	"github.com/hallmont/identity-core/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceCode string `json:"device_code"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceCode   string `json:"device_code"`
}

// logoutRequest is the request body for POST /auth/logout.
type logoutRequest struct {
	DeviceCode string `json:"device_code"`
}

// tokensResponse carries a freshly issued token pair.
type tokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// userResponse is the public projection of a user account.
type userResponse struct {
	ID      string    `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone,omitempty"`
	Address string    `json:"address,omitempty"`
	Role    auth.Role `json:"role"`
}

// authResponse is the response body for successful login and refresh.
type authResponse struct {
	Data struct {
		Tokens tokensResponse `json:"tokens"`
		User   userResponse   `json:"user"`
	} `json:"data"`
}

func newAuthResponse(tokens tokensResponse, user *auth.User) authResponse {
	var resp authResponse
	resp.Data.Tokens = tokens
	resp.Data.User = publicUser(user)
	return resp
}

func publicUser(user *auth.User) userResponse {
	return userResponse{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Phone:   user.Phone,
		Address: user.Address,
		Role:    user.Role,
	}
}

// handleLogin authenticates an email/password pair, issues an access and a
// refresh token, and records the refresh token in the device ledger.
//
// The ledger insert is attempted first; on ErrDeviceConflict (the device
// already has an active refresh token, or a concurrent login won the
// insert) the flow retries exactly once as an explicit token replacement.
// The ledger itself never upserts.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" || req.DeviceCode == "" {
		writeBadRequest(w, "email, password and device_code are required")
		return
	}

	ctx := r.Context()

	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, "user not found")
		return
	}
	if err != nil {
		s.logger.Error("login user lookup failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("login password verification failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}
	if !ok {
		s.recordAudit(ctx, &audit.Entry{
			Action:     audit.ActionLoginFailed,
			UserID:     user.ID,
			Email:      user.Email,
			DeviceCode: req.DeviceCode,
			Detail:     "password mismatch",
		})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	tokens, err := s.issueTokenPair(user.ID)
	if err != nil {
		s.logger.Error("login token issuance failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	if err := s.recordDeviceLogin(ctx, user.ID, req.DeviceCode, tokens.RefreshToken); err != nil {
		s.logger.Error("login device recording failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	s.recordAudit(ctx, &audit.Entry{
		Action:     audit.ActionLogin,
		UserID:     user.ID,
		Email:      user.Email,
		DeviceCode: req.DeviceCode,
	})

	writeJSON(w, http.StatusOK, newAuthResponse(tokens, user))
}

// handleRefresh exchanges a valid refresh token for a fresh token pair.
//
// The presented token must match the ledger's active refresh token for
// (subject user, device code) exactly; the stored token rotates to the new
// one on success. Every failure mode reads the same on the wire.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" || req.DeviceCode == "" {
		writeBadRequest(w, "refresh_token and device_code are required")
		return
	}

	ctx := r.Context()

	userID, err := s.tokens.ValidateRefreshToken(req.RefreshToken)
	if errors.Is(err, auth.ErrTokenExpired) {
		writeUnauthorized(w, "authentication expired")
		return
	}
	if err != nil {
		writeUnauthorized(w, "invalid authentication")
		return
	}

	device, err := s.devices.FindByUserAndCode(ctx, userID, req.DeviceCode)
	if errors.Is(err, auth.ErrDeviceNotFound) {
		writeUnauthorized(w, "invalid authentication")
		return
	}
	if err != nil {
		s.logger.Error("refresh device lookup failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	if subtle.ConstantTimeCompare([]byte(device.RefreshToken), []byte(req.RefreshToken)) != 1 {
		writeUnauthorized(w, "invalid authentication")
		return
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeUnauthorized(w, "invalid authentication")
		return
	}
	if err != nil {
		s.logger.Error("refresh user lookup failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	tokens, err := s.issueTokenPair(user.ID)
	if err != nil {
		s.logger.Error("refresh token issuance failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	if err := s.devices.ReplaceRefreshToken(ctx, device.ID, tokens.RefreshToken); err != nil {
		s.logger.Error("refresh token rotation failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	s.recordAudit(ctx, &audit.Entry{
		Action:     audit.ActionRefresh,
		UserID:     user.ID,
		Email:      user.Email,
		DeviceCode: req.DeviceCode,
	})

	writeJSON(w, http.StatusOK, newAuthResponse(tokens, user))
}

// handleLogout removes the caller's device row, invalidating the refresh
// token stored for it. Logging out an unknown device code is not an error.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceCode == "" {
		writeBadRequest(w, "device_code is required")
		return
	}

	ctx := r.Context()
	id := identityFrom(ctx)
	if id.User == nil {
		// System callers have no device ledger rows.
		writeJSON(w, http.StatusOK, map[string]string{"message": "logout successful"})
		return
	}

	err := s.devices.DeleteByUserAndCode(ctx, id.User.ID, req.DeviceCode)
	if err != nil && !errors.Is(err, auth.ErrDeviceNotFound) {
		s.logger.Error("logout device removal failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	s.recordAudit(ctx, &audit.Entry{
		Action:     audit.ActionLogout,
		UserID:     id.User.ID,
		Email:      id.User.Email,
		DeviceCode: req.DeviceCode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logout successful"})
}

// issueTokenPair mints a fresh access and refresh token for the user.
func (s *Server) issueTokenPair(userID string) (tokensResponse, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return tokensResponse{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return tokensResponse{}, err
	}
	return tokensResponse{AccessToken: access, RefreshToken: refresh}, nil
}

// recordDeviceLogin inserts the device row, retrying once as an explicit
// replacement when the (user, code) pair already holds a refresh token.
func (s *Server) recordDeviceLogin(ctx context.Context, userID, code, refreshToken string) error {
	device := &auth.Device{UserID: userID, Code: code, RefreshToken: refreshToken}

	err := s.devices.Insert(ctx, device)
	if !errors.Is(err, auth.ErrDeviceConflict) {
		return err
	}

	existing, err := s.devices.FindByUserAndCode(ctx, userID, code)
	if err != nil {
		return err
	}
	return s.devices.ReplaceRefreshToken(ctx, existing.ID, refreshToken)
}

// recordAudit writes an audit entry. Audit failures are logged and never
// fail the request they describe.
func (s *Server) recordAudit(ctx context.Context, entry *audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("recording audit entry failed",
			"action", entry.Action,
			"error", err,
		)
	}
}
