package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "conote")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadToken(); err == nil {
		t.Fatalf("expected error when token file missing")
	}
	if err := saveToken("tok", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken()
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken: tok=%q err=%v", tok, err)
	}
	st, err := os.Stat(tokenPath())
	if err != nil || st.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode: %v %v", st, err)
	}
	if err := saveToken("tok2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("saveToken expired: %v", err)
	}
	if _, err := loadToken(); err == nil {
		t.Fatalf("want error for expired token")
	}
}

func Test_readAll_File_And_Stdin(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.txt")
	_ = os.WriteFile(tmp, []byte("hello"), 0o600)
	b, err := readAll(tmp)
	if err != nil || string(b) != "hello" {
		t.Fatalf("readAll(file): %q %v", b, err)
	}

	r, w, _ := os.Pipe()
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()
	go func() { _, _ = io.WriteString(w, "from-stdin"); _ = w.Close() }()
	b, err = readAll("-")
	if err != nil || string(b) != "from-stdin" {
		t.Fatalf("readAll(stdin): %q %v", b, err)
	}
}

func Test_printJSON_WritesPretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := printJSON(&buf, map[string]any{"a": 1}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	var m map[string]any
	if json.Unmarshal(buf.Bytes(), &m) != nil || m["a"] != float64(1) {
		t.Fatalf("printJSON produced invalid json: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Fatalf("printJSON should indent")
	}
}

func Test_loadTLS_Variants(t *testing.T) {
	t.Parallel()

	cfg, err := loadTLS("", true)
	if err != nil || cfg == nil || !cfg.InsecureSkipVerify {
		t.Fatalf("insecure: %v %v", cfg, err)
	}
	cfg, err = loadTLS("", false)
	if err != nil || cfg != nil {
		t.Fatalf("default tls should be nil: %v %v", cfg, err)
	}
	tmp := filepath.Join(t.TempDir(), "bad.pem")
	_ = os.WriteFile(tmp, []byte("not pem"), 0o600)
	cfg, err = loadTLS(tmp, false)
	if err == nil || cfg != nil {
		t.Fatalf("bad CA should error, got cfg=%v err=%v", cfg, err)
	}
}

// fakeAPI answers a few routes with the server's response envelope.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	write := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "secret" {
			write(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid email or password"})
			return
		}
		write(w, http.StatusOK, map[string]any{"success": true, "message": "logged in", "data": map[string]any{
			"accessToken": "T1",
			"expiresAt":   time.Now().Add(time.Hour).UTC(),
			"user":        map[string]any{"id": "u1", "email": req["email"]},
		}})
	})
	mux.HandleFunc("GET /notes", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T1" {
			write(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "authentication required"})
			return
		}
		archived := r.URL.Query().Get("includeArchived") == "true"
		notes := []map[string]any{{"id": "n1", "title": "live", "version": 1}}
		if archived {
			notes = append(notes, map[string]any{"id": "n2", "title": "old", "version": 3, "isArchived": true})
		}
		write(w, http.StatusOK, map[string]any{"success": true, "message": "notes retrieved", "data": notes})
	})
	mux.HandleFunc("POST /notes/share/{id}/revoke", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusNotFound, map[string]any{"success": false, "message": "share not found"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func Test_client_do_DecodesEnvelope(t *testing.T) {
	srv := fakeAPI(t)
	c := newClient(srv.URL+"/", "T1", nil)

	var notes []map[string]any
	if err := c.do(context.Background(), http.MethodGet, "/notes", nil, &notes); err != nil {
		t.Fatalf("do: %v", err)
	}
	if len(notes) != 1 || notes[0]["id"] != "n1" {
		t.Fatalf("unexpected notes: %v", notes)
	}

	c.token = ""
	err := c.do(context.Background(), http.MethodGet, "/notes", nil, &notes)
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized || ae.Message != "authentication required" {
		t.Fatalf("want 401 apiError, got %v", err)
	}
}

func Test_LoginThenList(t *testing.T) {
	_ = withTmpConfig(t)
	srv := fakeAPI(t)

	if _, err := execute(t, "--addr", srv.URL, "login", "-u", "a@x.io", "-p", "wrong"); err == nil {
		t.Fatalf("login with a bad password should fail")
	}
	if _, err := execute(t, "--addr", srv.URL, "list"); err == nil {
		t.Fatalf("list without a token should fail")
	}

	out, err := execute(t, "--addr", srv.URL, "login", "-u", "a@x.io", "-p", "secret")
	if err != nil || strings.TrimSpace(out) != "ok" {
		t.Fatalf("login: %q %v", out, err)
	}
	out, err = execute(t, "--addr", srv.URL, "list", "--archived")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, `"n1"`) || !strings.Contains(out, `"n2"`) {
		t.Fatalf("list output unexpected: %s", out)
	}

	_, err = execute(t, "--addr", srv.URL, "revoke", "s1")
	if err == nil || !strings.Contains(err.Error(), "share not found") {
		t.Fatalf("revoke should surface the server message, got %v", err)
	}
}

func Test_version(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "conote dev") {
		t.Fatalf("version: %q %v", out, err)
	}
}
