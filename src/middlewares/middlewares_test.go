package middlewares

import (
	"context"
	"crewcomms/src/utils"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	uid, ok := f[idToken]
	if !ok {
		return nil, errors.New("ID token has invalid signature")
	}
	return &auth.Token{UID: uid, Claims: map[string]interface{}{"email": uid + "@example.com"}}, nil
}

func router(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", mw, func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"uid": ctx.GetString("uid"), "email": ctx.GetString("email")})
	})
	return r
}

func get(r *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := router(AuthMiddleware)

	tok, err := utils.GenerateJWT("alex", "alex@example.com", "")
	require.NoError(t, err)
	w := get(r, "Bearer "+tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alex", gjson.Get(w.Body.String(), "uid").String())

	for _, header := range []string{"", "Bearer", "Token " + tok, "Bearer not-a-jwt"} {
		w := get(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Equal(t, "unauthenticated", gjson.Get(w.Body.String(), "kind").String())
	}
}

func TestVerifyIdToken(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	NewIDTokenVerifier(fakeVerifier{"firebase-token": "bea"})
	t.Cleanup(func() { NewIDTokenVerifier(nil) })
	r := router(VerifyIdToken)

	w := get(r, "Bearer firebase-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bea", gjson.Get(w.Body.String(), "uid").String())
	assert.Equal(t, "bea@example.com", gjson.Get(w.Body.String(), "email").String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer forged").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
}
