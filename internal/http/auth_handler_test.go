package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"otp-auth/internal/domain"
	"otp-auth/internal/email"
	"otp-auth/internal/service"
)

type mockUserRepo struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, emailAddr string) (domain.User, error) {
	user, err := m.GetByEmailWithSecrets(context.Background(), emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = ""
	user.Otp = nil
	return user, nil
}

func (m *mockUserRepo) GetByEmailWithSecrets(_ context.Context, emailAddr string) (domain.User, error) {
	id, ok := m.usersByEmail[emailAddr]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

func (m *mockUserRepo) Update(_ context.Context, user domain.User) error {
	if _, ok := m.usersByID[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(m.usersByEmail, user.Email)
	delete(m.usersByID, id)
	return nil
}

type mockEmailSender struct {
	lastTo      string
	lastPurpose email.Purpose
	lastCode    string
	err         error
}

func (m *mockEmailSender) SendOTP(_ context.Context, toEmail, _ string, purpose email.Purpose, code string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastPurpose = purpose
	m.lastCode = code
	return m.err
}

func setupAuthRouter(repo *mockUserRepo, sender *mockEmailSender) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	authSvc := service.NewAuthService(logger, repo, sender, nil)
	jwtSvc := service.NewJWTService("test-secret", 15*time.Minute, 30*time.Minute)
	h := NewAuthHandler(logger, authSvc, jwtSvc)
	return NewRouter(logger, h, jwtSvc)
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestAuthHandlerSignup_Success(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	rec := performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name":     "Alice",
		"email":    "alice@x.com",
		"password": "pw123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success response, got %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["email"] != "alice@x.com" || data["name"] != "Alice" || data["user_id"] == "" {
		t.Fatalf("unexpected data payload: %v", data)
	}
	if sender.lastTo != "alice@x.com" || sender.lastCode == "" {
		t.Fatalf("expected verification otp sent")
	}
}

func TestAuthHandlerSignup_MissingFields(t *testing.T) {
	repo := newMockUserRepo()
	r := setupAuthRouter(repo, &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "alice@x.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if len(repo.usersByID) != 0 {
		t.Fatalf("expected no account created on validation failure")
	}
}

func TestAuthHandlerSignup_DuplicateEmail(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	payload := map[string]string{"name": "Alice", "email": "alice@x.com", "password": "pw123"}
	if rec := performRequest(r, http.MethodPost, "/api/auth/signup", payload); rec.Code != http.StatusCreated {
		t.Fatalf("first signup failed: %d", rec.Code)
	}
	rec := performRequest(r, http.MethodPost, "/api/auth/signup", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestAuthHandlerSignup_DeliveryFailure(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{err: errors.New("smtp down")}
	r := setupAuthRouter(repo, sender)

	rec := performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if len(repo.usersByID) != 0 {
		t.Fatalf("expected account deleted after delivery failure")
	}
}

func TestAuthHandlerVerifyOTP_FullFlow(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	if rec := performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("signup failed: %d", rec.Code)
	}

	rec := performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com",
		"code":  sender.lastCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	tokens, _ := data["tokens"].(map[string]any)
	if tokens["access_token"] == "" || tokens["refresh_token"] == "" {
		t.Fatalf("expected tokens in response, got %v", data)
	}

	// Reusar el codigo consumido responde 400.
	rec = performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com",
		"code":  sender.lastCode,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 on replay, got %d", rec.Code)
	}
}

func TestAuthHandlerVerifyOTP_UserNotFound(t *testing.T) {
	r := setupAuthRouter(newMockUserRepo(), &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "missing@x.com",
		"code":  "123456",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestAuthHandlerLogin_UnverifiedAndBadCredentials(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	if rec := performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("signup failed: %d", rec.Code)
	}

	rec := performRequest(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@x.com", "password": "pw123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for unverified account, got %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["message"]; msg != "Please verify your email first" {
		t.Fatalf("unexpected message: %v", msg)
	}

	if rec := performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	}); rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d", rec.Code)
	}

	// Email desconocido y password incorrecto responden identico.
	recUnknown := performRequest(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@x.com", "password": "pw123",
	})
	recWrongPw := performRequest(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@x.com", "password": "wrong",
	})
	if recUnknown.Code != http.StatusUnauthorized || recWrongPw.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d and %d", recUnknown.Code, recWrongPw.Code)
	}
	if recUnknown.Body.String() != recWrongPw.Body.String() {
		t.Fatalf("expected identical bodies, got %s and %s", recUnknown.Body.String(), recWrongPw.Body.String())
	}
}

func TestAuthHandlerLogin_Success(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	})
	performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	})

	rec := performRequest(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@x.com", "password": "pw123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if tokens, _ := data["tokens"].(map[string]any); tokens["access_token"] == "" {
		t.Fatalf("expected access token, got %v", data)
	}
}

func TestAuthHandlerForgotAndResetPassword(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "old-pw",
	})
	performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	})

	rec := performRequest(r, http.MethodPost, "/api/auth/forgot-password", map[string]string{
		"email": "alice@x.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if sender.lastPurpose != email.PurposePasswordReset {
		t.Fatalf("expected password reset email, got %s", sender.lastPurpose)
	}

	rec = performRequest(r, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode, "new_password": "new-pw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := performRequest(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@x.com", "password": "old-pw",
	}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected old password rejected, got %d", rec.Code)
	}
	if rec := performRequest(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@x.com", "password": "new-pw",
	}); rec.Code != http.StatusOK {
		t.Fatalf("expected new password accepted, got %d", rec.Code)
	}
}

func TestAuthHandlerResendOTP_AlreadyVerified(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	})
	performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	})

	rec := performRequest(r, http.MethodPost, "/api/auth/resend-otp", map[string]string{
		"email": "alice@x.com",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestAuthHandlerResendOTP_Success(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	})

	rec := performRequest(r, http.MethodPost, "/api/auth/resend-otp", map[string]string{
		"email": "alice@x.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec := performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	}); rec.Code != http.StatusOK {
		t.Fatalf("expected resent code to verify, got %d", rec.Code)
	}
}

func TestAuthHandlerRefreshToken(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	})
	rec := performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	})
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	tokens, _ := data["tokens"].(map[string]any)
	refresh, _ := tokens["refresh_token"].(string)

	rec = performRequest(r, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": refresh,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(r, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": "not-a-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthHandlerProfile_Protected(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@x.com", "password": "pw123",
	})
	rec := performRequest(r, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": "alice@x.com", "code": sender.lastCode,
	})
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	tokens, _ := data["tokens"].(map[string]any)
	access, _ := tokens["access_token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	recorder := httptest.NewRecorder()
	r.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	profile := decodeBody(t, recorder)
	profileData, _ := profile["data"].(map[string]any)
	user, _ := profileData["user"].(map[string]any)
	if user["email"] != "alice@x.com" || user["is_verified"] != true {
		t.Fatalf("unexpected profile payload: %v", user)
	}

	recorder = httptest.NewRecorder()
	r.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", recorder.Code)
	}
}
