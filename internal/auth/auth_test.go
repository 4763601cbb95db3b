package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
)

func TestNewJWTManager(t *testing.T) {
	_, err := NewJWTManager("")
	assert.ErrorIs(t, err, ErrMissingSigningKey)

	jm, err := NewJWTManager("secret")
	require.NoError(t, err)
	assert.Equal(t, "HS256", jm.algorithm)
}

func TestJWTManager_RoundTrip(t *testing.T) {
	jm, err := NewJWTManager("secret")
	require.NoError(t, err)
	ctx := context.Background()

	token, expiresAt, err := jm.GenerateToken(ctx, "user-1", "ops@example.com", []string{"user"}, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := jm.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Username)
	assert.Equal(t, []string{"user"}, claims.Roles)

	other, err := NewJWTManager("other-secret")
	require.NoError(t, err)
	_, err = other.ValidateToken(ctx, token)
	assert.Error(t, err)

	expired, _, err := jm.GenerateToken(ctx, "user-1", "ops@example.com", nil, -time.Minute)
	require.NoError(t, err)
	_, err = jm.ValidateToken(ctx, expired)
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	jm, err := NewJWTManager("secret")
	require.NoError(t, err)
	token, _, err := jm.GenerateToken(context.Background(), "user-1", "ops@example.com", []string{"user"}, time.Hour)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/protected", RequireAuth(jm, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), "user-1")
			} else {
				assert.Contains(t, w.Body.String(), models.ErrCodeUnauthorized)
			}
		})
	}
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, SecretMatches("s3cret", "s3cret"))
	assert.False(t, SecretMatches("s3cret", "s3cre"))
	assert.False(t, SecretMatches("s3cret", ""))
	assert.False(t, SecretMatches("", ""), "an unset secret rejects everything")
}

func TestValidateNewUser(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
		wantErr  string
	}{
		{"valid", "Ops", "ops@example.com", "passw0rdX", ""},
		{"empty name", " ", "ops@example.com", "passw0rdX", "name is required"},
		{"bad email", "Ops", "not-an-email", "passw0rdX", "invalid email"},
		{"short password", "Ops", "ops@example.com", "a1", "at least 8"},
		{"no digit", "Ops", "ops@example.com", "password", "one letter and one number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewUser(tt.userName, tt.email, tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("passw0rd"), bcrypt.MinCost)
	require.NoError(t, err)
	op := &models.Operator{PasswordHash: string(hash)}

	assert.True(t, CheckPassword(op, "passw0rd"))
	assert.False(t, CheckPassword(op, "wrong"))
	assert.Equal(t, "ops@example.com", NormalizeEmail("  Ops@Example.COM "))
}
