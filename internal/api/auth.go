package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/ewanmcc/fleetlink-core/internal/auth"
)

// ticketTTL is how long an operator feed ticket is valid.
const ticketTTL = 60 * time.Second

// qrCodeSize is the pixel width of the generated enrolment QR code.
const qrCodeSize = 256

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin authenticates the operator and returns a session token.
//
// A 401 with second_factor_required set means the credentials were accepted
// but a TOTP code must accompany the retry. A plain 401 reveals nothing about
// which part of the submission was wrong.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	token, err := s.auth.Authenticate(req.Username, req.Password, req.TOTPCode)
	if err != nil {
		if errors.Is(err, auth.ErrSecondFactorRequired) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"status":                 http.StatusUnauthorized,
				"code":                   ErrCodeUnauthorized,
				"message":                "two-factor code required",
				"second_factor_required": true,
			})
			return
		}
		writeUnauthorized(w, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.auth.TokenTTL().Seconds()),
	})
}

// twoFactorSetupResponse is the response body for GET /twofactor/setup.
type twoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"`
	Issuer     string `json:"issuer"`
}

// handleTwoFactorSetup returns the enrolment bundle for an authenticator
// app: the shared secret, the otpauth:// URI, and the URI rendered as a PNG
// data URL for direct display.
func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, _ *http.Request) {
	material := s.auth.SetupMaterial()

	png, err := qrcode.Encode(material.EnrollmentURI, qrcode.Medium, qrCodeSize)
	if err != nil {
		s.logger.Error("failed to render enrolment QR code", "error", err)
		writeInternalError(w, "failed to render QR code")
		return
	}

	writeJSON(w, http.StatusOK, twoFactorSetupResponse{
		Secret:     material.Secret,
		OTPAuthURL: material.EnrollmentURI,
		QRCode:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Issuer:     material.Issuer,
	})
}

// handleTwoFactorVerify checks a TOTP code against the shared secret without
// issuing a token. Used during enrolment to prove the authenticator app is
// set up correctly.
func (s *Server) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": s.auth.VerifyCode(req.Code),
	})
}

// ticketStore holds pending feed authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
	}
}

// handleWSTicket generates a single-use feed authentication ticket.
// The client uses this ticket to authenticate the feed WebSocket connection
// without exposing the session token in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	ticket := generateTicket()

	s.tickets.mu.Lock()
	s.tickets.tickets[ticket] = ticketEntry{
		expiresAt: time.Now().Add(ticketTTL),
	}
	s.tickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// validateTicket checks if a ticket is valid and consumes it (single-use).
func (ts *ticketStore) validateTicket(ticket string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return false
	}

	// Remove ticket (single-use)
	delete(ts.tickets, ticket)

	return time.Now().Before(entry.expiresAt)
}

// ticketBytes is the number of random bytes used for feed tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanExpired removes expired tickets from the store.
func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// cleanTicketsLoop runs cleanExpired periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
