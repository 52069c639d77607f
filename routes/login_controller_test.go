package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/oauth"
	"github.com/mkoval/formgate/httpx"
)

func TestLoginRoundTrip(t *testing.T) {
	a := testApp(t, nil)
	if err := httpx.EnsureAdminUser(a.DB, "admin", "hunter2"); err != nil {
		t.Fatal(err)
	}
	handler := Wire(a)

	login := func(user, pass string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/api/login", nil)
		r.SetBasicAuth(user, pass)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	w := login("admin", "wrong")
	if w.Code == http.StatusOK {
		t.Fatal("bad password must not yield a token")
	}

	w = login("admin", "hunter2")
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body)
	}
	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &token); err != nil {
		t.Fatal(err)
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		t.Fatalf("incomplete token response: %s", w.Body)
	}

	t.Run("admin route with token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/admin/surveys", nil)
		r.Header.Set("Authorization", "Bearer "+token.AccessToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status %d: %s", w.Code, w.Body)
		}
	})

	t.Run("admin route without token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/admin/surveys", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", w.Code)
		}
	})

	t.Run("refresh", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/refresh", nil)
		r.Header.Set("Authorization", "Refresh "+token.RefreshToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status %d: %s", w.Code, w.Body)
		}
		var refreshed struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &refreshed); err != nil {
			t.Fatal(err)
		}
		if refreshed.AccessToken == "" {
			t.Fatalf("incomplete refresh response: %s", w.Body)
		}
	})

	t.Run("refresh token reuse is rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/refresh", nil)
		r.Header.Set("Authorization", "Refresh "+token.RefreshToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code == http.StatusOK {
			t.Fatal("a consumed refresh token must not work twice")
		}
	})
}

func TestValidateTokenIDReportsStorageFailure(t *testing.T) {
	a := testApp(t, nil)
	verifier := httpx.CredentialsVerifier(a.DB)

	if err := verifier.StoreTokenID(oauth.UserToken, "admin", "tok", "ref"); err != nil {
		t.Fatal(err)
	}
	if err := verifier.ValidateTokenID(oauth.UserToken, "admin", "tok", "ref"); err != nil {
		t.Fatalf("stored token rejected: %s", err)
	}

	err := verifier.ValidateTokenID(oauth.UserToken, "admin", "tok", "ref")
	if err == nil {
		t.Fatal("consumed token must be rejected")
	}
	rejection := err.Error()

	a.DB.Close()
	err = verifier.ValidateTokenID(oauth.UserToken, "admin", "tok", "ref")
	if err == nil {
		t.Fatal("closed database must surface an error")
	}
	if err.Error() == rejection {
		t.Fatalf("database failure reported as a token rejection: %s", err)
	}
}

func TestEnsureAdminUserUpdatesPassword(t *testing.T) {
	a := testApp(t, nil)
	if err := httpx.EnsureAdminUser(a.DB, "admin", "first"); err != nil {
		t.Fatal(err)
	}
	if err := httpx.EnsureAdminUser(a.DB, "admin", "second"); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := a.QueryRow("SELECT COUNT(*) FROM admin_user").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("admin_user rows = %d, want 1", count)
	}

	verifier := httpx.CredentialsVerifier(a.DB)
	if err := verifier.ValidateUser("admin", "second", "", nil); err != nil {
		t.Fatalf("updated password rejected: %s", err)
	}
	if err := verifier.ValidateUser("admin", "first", "", nil); err == nil {
		t.Fatal("old password still accepted")
	}
}
