package report

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const loginPage = `<html><body><form action="/Home/CheckLogin">
<input name="__RequestVerificationToken" type="hidden" value="tok-123"/>
</form></body></html>`

func TestExtractVerificationToken(t *testing.T) {
	token, err := extractVerificationToken([]byte(loginPage))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
}

func TestExtractVerificationToken_Missing(t *testing.T) {
	if _, err := extractVerificationToken([]byte("<html><body>no form</body></html>")); err == nil {
		t.Fatal("expected error when token input is absent")
	}
}

func TestClient_LoginAndFetch(t *testing.T) {
	var sawToken, sawExport bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, loginPage)
	})
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("RequestVerificationToken") != "tok-123" {
			http.Error(w, "missing token", http.StatusForbidden)
			return
		}
		if r.FormValue("Username") != "acme" || r.FormValue("UserKey") != "secret" {
			http.Error(w, "bad credentials", http.StatusForbidden)
			return
		}
		sawToken = true
	})
	mux.HandleFunc(exportPath, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("StartDate"); got != "2024-01-01 00:00:00" {
			t.Errorf("StartDate = %q", got)
		}
		if got := r.URL.Query().Get("EndDate"); got != "2024-01-07 23:59:59" {
			t.Errorf("EndDate = %q", got)
		}
		sawExport = true
		io.WriteString(w, "SubmitDate,CompanyName,MessageParts,ClientCost,TerminationCost\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(ClientOptions{
		BaseURL:  srv.URL,
		Username: "acme",
		UserKey:  "secret",
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
	payload, err := c.Fetch(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !sawToken || !sawExport {
		t.Errorf("login seen = %v, export seen = %v, want both", sawToken, sawExport)
	}
	if !LooksTabular(payload) {
		t.Error("expected tabular payload")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseURL: "http://example.net"})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("got %v, want ErrAuthFailed", err)
	}
}
