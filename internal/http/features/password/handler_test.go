package password

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tendant/listings-idm/internal/http/featuretest"
)

func newRouter(env *featuretest.Env) http.Handler {
	r := chi.NewRouter()
	NewHandler(env.Logger, env.Service).RegisterRoutes(r)
	return r
}

func TestSignup(t *testing.T) {
	env := featuretest.New(t)
	h := newRouter(env)

	rec := featuretest.Do(t, h, http.MethodPost, "/signup", map[string]string{
		"username": "alice",
		"email":    "Alice@Example.com",
		"password": "password123",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := featuretest.Decode(t, rec)
	user := body["user"].(map[string]any)
	require.Equal(t, "alice", user["username"])
	require.Equal(t, "alice@example.com", user["email"])
	require.Equal(t, false, user["mfa_enabled"])
	require.NotContains(t, rec.Body.String(), "password_hash")
	require.NotContains(t, rec.Body.String(), "$2a$")
}

func TestSignup_Errors(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing fields",
			body:       map[string]string{"username": "bob", "email": "bob@example.com"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_failed",
		},
		{
			name:       "short password",
			body:       map[string]string{"username": "bob", "email": "bob@example.com", "password": "short"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_failed",
		},
		{
			name:       "email taken",
			body:       map[string]string{"username": "bob", "email": "alice@example.com", "password": "password123"},
			wantStatus: http.StatusConflict,
			wantCode:   "email_taken",
		},
		{
			name:       "username taken",
			body:       map[string]string{"username": "alice", "email": "bob@example.com", "password": "password123"},
			wantStatus: http.StatusConflict,
			wantCode:   "username_taken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := featuretest.Do(t, h, http.MethodPost, "/signup", tt.body, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			require.Equal(t, tt.wantCode, featuretest.Decode(t, rec)["error"])
		})
	}
}

func TestSignup_MalformedBody(t *testing.T) {
	env := featuretest.New(t)
	rec := featuretest.Do(t, newRouter(env), http.MethodPost, "/signup", "not an object", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	rec := featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := featuretest.Decode(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	session := body["session"].(map[string]any)
	require.Equal(t, token, session["token"])
	require.Equal(t, "Bearer", session["token_type"])
	require.EqualValues(t, 3600, session["expires_in"])

	account, err := env.Service.Authenticate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "alice", account.Username)
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	wrongPassword := featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "password": "wrongpassword",
	}, "")
	unknownEmail := featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email": "nobody@example.com", "password": "wrongpassword",
	}, "")

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, wrongPassword.Code, unknownEmail.Code)
	require.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLogin_MFARequired(t *testing.T) {
	env := featuretest.New(t)
	account := env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	id := uuid.MustParse(account.ID)
	setup, err := env.Service.InitiateMFASetup(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, env.Service.CompleteMFASetup(context.Background(), id, env.Code(t, setup.Secret)))

	rec := featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "password": "password123",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := featuretest.Decode(t, rec)
	require.Equal(t, "mfa_required", body["error"])
	require.Equal(t, true, body["mfa_required"])
	require.NotContains(t, body, "token")

	rec = featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "password": "password123", "mfa_code": "000000",
	}, "")
	if env.Code(t, setup.Secret) != "000000" {
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid_mfa_code", featuretest.Decode(t, rec)["error"])
	}

	rec = featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "password": "password123", "mfa_code": env.Code(t, setup.Secret),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPasswordResetFlow(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	rec := featuretest.Do(t, h, http.MethodPost, "/forgotpassword", map[string]string{"email": "alice@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := env.Mailer.ResetToken(t)

	rec = featuretest.Do(t, h, http.MethodPut, "/resetPassword/"+token, map[string]string{"password": "newpassword456"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, featuretest.Decode(t, rec)["success"])

	// Single use.
	rec = featuretest.Do(t, h, http.MethodPut, "/resetPassword/"+token, map[string]string{"password": "another789"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_or_expired_token", featuretest.Decode(t, rec)["error"])

	env.Login(t, "alice@example.com", "newpassword456", "")
}

func TestResetPassword_Expired(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	featuretest.Do(t, h, http.MethodPost, "/forgotpassword", map[string]string{"email": "alice@example.com"}, "")
	token := env.Mailer.ResetToken(t)

	env.Clock.Advance(time.Hour)
	rec := featuretest.Do(t, h, http.MethodPut, "/resetPassword/"+token, map[string]string{"new_password": "newpassword456"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPassword_UnknownEmailLooksAccepted(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	known := featuretest.Do(t, h, http.MethodPost, "/forgotpassword", map[string]string{"email": "alice@example.com"}, "")
	unknown := featuretest.Do(t, h, http.MethodPost, "/forgotpassword", map[string]string{"email": "nobody@example.com"}, "")

	require.Equal(t, http.StatusOK, unknown.Code)
	require.Equal(t, known.Body.String(), unknown.Body.String())
	require.Len(t, env.Mailer.Sent(), 1)
}

func TestForgotPassword_DeliveryFailure(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	env.Mailer.Err = errors.New("smtp: 421 service not available")
	h := newRouter(env)

	rec := featuretest.Do(t, h, http.MethodPost, "/forgotpassword", map[string]string{"email": "alice@example.com"}, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := featuretest.Decode(t, rec)
	require.Equal(t, "delivery_failed", body["error"])
	require.NotContains(t, body["message"], "421")

	stored, err := env.Store.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Nil(t, stored.ResetTokenHash)
}

func TestLogin_CamelCaseMFAToken(t *testing.T) {
	env := featuretest.New(t)
	account := env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	id := uuid.MustParse(account.ID)
	setup, err := env.Service.InitiateMFASetup(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, env.Service.CompleteMFASetup(context.Background(), id, env.Code(t, setup.Secret)))

	rec := featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "password": "password123",
	}, "")
	require.Equal(t, true, featuretest.Decode(t, rec)["mfaRequired"])

	rec = featuretest.Do(t, h, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "password": "password123", "mfaToken": env.Code(t, setup.Secret),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, featuretest.Decode(t, rec)["token"])
}

func TestResetPassword_CamelCaseBodyAndLowercasePath(t *testing.T) {
	env := featuretest.New(t)
	env.Signup(t, "alice", "alice@example.com", "password123")
	h := newRouter(env)

	featuretest.Do(t, h, http.MethodPost, "/forgotpassword", map[string]string{"email": "alice@example.com"}, "")
	token := env.Mailer.ResetToken(t)

	rec := featuretest.Do(t, h, http.MethodPut, "/resetPassword/"+token, map[string]string{"newPassword": "newpassword456"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env.Login(t, "alice@example.com", "newpassword456", "")

	featuretest.Do(t, h, http.MethodPost, "/forgotpassword", map[string]string{"email": "alice@example.com"}, "")
	token = env.Mailer.ResetToken(t)

	rec = featuretest.Do(t, h, http.MethodPut, "/resetpassword/"+token, map[string]string{"newPassword": "another789x"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env.Login(t, "alice@example.com", "another789x", "")
}
