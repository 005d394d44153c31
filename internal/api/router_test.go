package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/everkeep/internal/auth"
	"github.com/charlesng35/everkeep/internal/database/testutil"
	"github.com/charlesng35/everkeep/internal/services"
	"github.com/charlesng35/everkeep/internal/storage"
)

type testEnv struct {
	t      *testing.T
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "everkeep"})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwt, iauth.SessionConfig{})
	require.NoError(t, err)
	credentials, err := iauth.NewCredentialsService(db, iauth.CredentialsConfig{})
	require.NoError(t, err)

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, users, audit, nil,
		services.WithInvitationBaseURL("https://everkeep.test"))
	require.NoError(t, err)
	continuation, err := services.NewContinuationSigner("router-test-secret")
	require.NoError(t, err)
	executors, err := services.NewExecutorService(db, audit)
	require.NoError(t, err)
	triggers, err := services.NewTriggerService(db)
	require.NoError(t, err)
	gate, err := services.NewAccessGate(db)
	require.NoError(t, err)
	blobs, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	verification, err := services.NewVerificationService(db, executors, triggers, audit, blobs)
	require.NoError(t, err)
	estate, err := services.NewEstateService(db, gate)
	require.NoError(t, err)

	router, err := NewRouter(Dependencies{
		DB:           db,
		JWT:          jwt,
		Sessions:     sessions,
		Credentials:  credentials,
		Users:        users,
		Invitations:  invitations,
		Continuation: continuation,
		Executors:    executors,
		Verification: verification,
		Estate:       estate,
		Gate:         gate,
		Audit:        audit,
	})
	require.NoError(t, err)

	return &testEnv{t: t, router: router}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func (e *testEnv) signup(email, password string) (accessToken string) {
	e.t.Helper()

	rec := e.do(http.MethodPost, "/api/auth/signup", "", gin.H{
		"email":     email,
		"password":  password,
		"full_name": "Test User",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(e.t, rec)
	return data["access_token"].(string)
}

func (e *testEnv) invite(plannerToken, email string) (executorID, rawToken string) {
	e.t.Helper()

	rec := e.do(http.MethodPost, "/api/executors", plannerToken, gin.H{
		"name":         "Erin Executor",
		"email":        email,
		"relationship": "sibling",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(e.t, rec)

	executor := data["executor"].(map[string]any)
	link, err := url.Parse(data["link"].(string))
	require.NoError(e.t, err)
	return executor["id"].(string), link.Query().Get("token")
}

func plannerIDFromMe(t *testing.T, env *testEnv, token string) string {
	t.Helper()

	rec := env.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	return data["user"].(map[string]any)["id"].(string)
}

func (e *testEnv) uploadCertificate(token, plannerID string, content []byte) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("certificate", "certificate.pdf")
	require.NoError(e.t, err)
	_, err = part.Write(content)
	require.NoError(e.t, err)
	require.NoError(e.t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/executorships/%s/death-certificate", plannerID), &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/no-such-route", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFullLifecycleNewUserExecutor(t *testing.T) {
	env := newTestEnv(t)

	plannerToken := env.signup("planner@example.com", "sturdy-passphrase")
	plannerID := plannerIDFromMe(t, env, plannerToken)

	_, inviteToken := env.invite(plannerToken, "erin@example.com")

	// Public landing info.
	rec := env.do(http.MethodGet, "/api/invitations/info?token="+inviteToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeData(t, rec)
	require.Equal(t, "erin@example.com", info["email"])
	require.Equal(t, false, info["has_account"])

	// New-account acceptance signs the executor in.
	rec = env.do(http.MethodPost, "/api/invitations/accept-new", "", gin.H{
		"token":     inviteToken,
		"password":  "sturdy-passphrase",
		"full_name": "Erin Executor",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	executorToken := decodeData(t, rec)["access_token"].(string)

	// Dashboard is locked before verification.
	rec = env.do(http.MethodGet, fmt.Sprintf("/api/executorships/%s/status", plannerID), executorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "locked", decodeData(t, rec)["state"])

	// Estate is refused while locked.
	rec = env.do(http.MethodGet, fmt.Sprintf("/api/executorships/%s/estate", plannerID), executorToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Death certificate upload fires the trigger.
	rec = env.uploadCertificate(executorToken, plannerID, []byte("certificate bytes"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, fmt.Sprintf("/api/executorships/%s/status", plannerID), executorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "unlocked", decodeData(t, rec)["state"])

	rec = env.do(http.MethodGet, fmt.Sprintf("/api/executorships/%s/estate", plannerID), executorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvitationTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)

	plannerToken := env.signup("planner@example.com", "sturdy-passphrase")
	_, inviteToken := env.invite(plannerToken, "erin@example.com")

	rec := env.do(http.MethodPost, "/api/invitations/accept-new", "", gin.H{
		"token":    inviteToken,
		"password": "sturdy-passphrase",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Replay reports "already accepted", not a fresh acceptance.
	rec = env.do(http.MethodGet, "/api/invitations/info?token="+inviteToken, "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvitationEmailMismatchIsRejected(t *testing.T) {
	env := newTestEnv(t)

	plannerToken := env.signup("planner@example.com", "sturdy-passphrase")
	_, inviteToken := env.invite(plannerToken, "erin@example.com")

	wrongToken := env.signup("imposter@example.com", "sturdy-passphrase")

	rec := env.do(http.MethodPost, "/api/invitations/accept", wrongToken, gin.H{"token": inviteToken})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The invitation survives the failed attempt.
	rec = env.do(http.MethodGet, "/api/invitations/info?token="+inviteToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeferredAcceptanceThroughLogin(t *testing.T) {
	env := newTestEnv(t)

	plannerToken := env.signup("planner@example.com", "sturdy-passphrase")
	_, inviteToken := env.invite(plannerToken, "erin@example.com")

	// Erin already has an account but is signed out.
	env.signup("erin@example.com", "sturdy-passphrase")

	rec := env.do(http.MethodPost, "/api/invitations/continuation", "", gin.H{"token": inviteToken})
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeData(t, rec)["invite_state"].(string)

	rec = env.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email":        "erin@example.com",
		"password":     "sturdy-passphrase",
		"invite_state": state,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	require.NotNil(t, data["invitation"])

	invitation := data["invitation"].(map[string]any)
	require.Equal(t, "active", invitation["status"])
}

func TestRevokedExecutorTokenDies(t *testing.T) {
	env := newTestEnv(t)

	plannerToken := env.signup("planner@example.com", "sturdy-passphrase")
	executorID, inviteToken := env.invite(plannerToken, "erin@example.com")

	rec := env.do(http.MethodPost, fmt.Sprintf("/api/executors/%s/revoke", executorID), plannerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/invitations/info?token="+inviteToken, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEstateCRUDRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/assets", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	plannerToken := env.signup("planner@example.com", "sturdy-passphrase")

	rec = env.do(http.MethodPost, "/api/assets", plannerToken, gin.H{
		"name":     "Checking account",
		"category": "financial",
		"value":    1000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/estate", plannerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	require.Len(t, data["assets"], 1)
}
