package redemption_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"confession-service/internal/auth"
	"confession-service/internal/metrics"
	"confession-service/internal/redemption"
	"confession-service/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedeemRouter(codeRepo *fakeCodeRepo, userRepo *fakeUserRepo, userID int) *chi.Mux {
	handler := redemption.NewHandler(newTestVault(codeRepo, userRepo), testLogger(), metrics.NewMock())

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), auth.UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	handler.RegisterRoutes(router)
	return router
}

func postRedeem(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/codes/redeem", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRedeemEndpoint(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		codeRepo := newFakeCodeRepo(&redemption.Code{ID: "c1", Code: "ABC12345"})
		userRepo := newFakeUserRepo(&user.User{ID: 7, MessagesLeft: 1})
		router := newRedeemRouter(codeRepo, userRepo, 7)

		rec := postRedeem(router, `{"code":"ABC12345"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Success bool `json:"success"`
			Added   int  `json:"added"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, redemption.PackCredit, body.Added)
		assert.Equal(t, 1+redemption.PackCredit, userRepo.stored(7).MessagesLeft)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		router := newRedeemRouter(newFakeCodeRepo(), newFakeUserRepo(&user.User{ID: 7}), 7)

		rec := postRedeem(router, `{"code":"MISSING1"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("UsedCode", func(t *testing.T) {
		usedBy := 3
		codeRepo := newFakeCodeRepo(&redemption.Code{ID: "c1", Code: "ABC12345", Used: true, UsedBy: &usedBy})
		router := newRedeemRouter(codeRepo, newFakeUserRepo(&user.User{ID: 7}), 7)

		rec := postRedeem(router, `{"code":"ABC12345"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("BadLength", func(t *testing.T) {
		router := newRedeemRouter(newFakeCodeRepo(), newFakeUserRepo(&user.User{ID: 7}), 7)

		rec := postRedeem(router, `{"code":"SHORT"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		handler := redemption.NewHandler(newTestVault(newFakeCodeRepo(), newFakeUserRepo()), testLogger(), metrics.NewMock())
		router := chi.NewRouter()
		handler.RegisterRoutes(router)

		rec := postRedeem(router, `{"code":"ABC12345"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
