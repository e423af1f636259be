package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"formforge/internal/app"
	"formforge/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	sessions, err := store.NewHS256SessionStore("test-secret-key", time.Minute, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	a, err := app.New(app.Config{Store: mem, Sessions: sessions})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: a}).Router())
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, decoded
}

func registerAndLogin(t *testing.T, base, username string) (string, string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password1",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %v", resp.StatusCode, body)
	}
	userID, _ := body["id"].(string)

	resp, body = doJSON(t, http.MethodPost, base+"/api/auth/login", map[string]string{
		"username": username,
		"password": "password1",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body %v", resp.StatusCode, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatal("login returned no access_token")
	}
	return userID, token
}

func TestRootAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("root status = %d", resp.StatusCode)
	}
	if body["message"] != "Welcome to the Form Builder API" {
		t.Fatalf("root body = %v", body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/no-such-path", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status = %d, want 404", resp.StatusCode)
	}
}

func TestRegisterStatusAndShape(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password1",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if body["id"] != "001" {
		t.Fatalf("id = %v, want 001", body["id"])
	}
	if _, leaked := body["password"]; leaked {
		t.Fatal("register response leaked password field")
	}

	// duplicate username is a client error
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "password1",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400 (%v)", resp.StatusCode, body)
	}
}

func TestRegisterDBEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth_db/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password1",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "success" {
		t.Fatalf("status field = %v", body["status"])
	}
	user, ok := body["user"].(map[string]any)
	if !ok || user["id"] != "001" {
		t.Fatalf("user field = %v", body["user"])
	}
}

func TestLoginAndTokenAliases(t *testing.T) {
	srv, _ := newTestServer(t)
	registerAndLogin(t, srv.URL, "alice")

	for _, path := range []string{"/api/auth/login", "/api/auth/token", "/api/auth_db/login", "/api/auth_db/token"} {
		resp, body := doJSON(t, http.MethodPost, srv.URL+path, map[string]string{
			"username": "alice",
			"password": "password1",
		}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
		if body["token_type"] != "bearer" {
			t.Fatalf("%s token_type = %v", path, body["token_type"])
		}
	}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}
}

func TestMeAndLogout(t *testing.T) {
	srv, _ := newTestServer(t)
	_, token := registerAndLogin(t, srv.URL, "alice")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	if body["username"] != "alice" {
		t.Fatalf("me body = %v", body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without token status = %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/auth/logout", nil, token)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", nil, token)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestFormLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	userID, token := registerAndLogin(t, srv.URL, "alice")

	fields := []map[string]any{{"id": "f1", "type": "text", "label": "Name"}}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/forms/auto-save", map[string]any{
		"form_name": "",
		"fields":    fields,
		"user_id":   userID,
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("auto-save status = %d, body %v", resp.StatusCode, body)
	}
	if body["form_name"] != "Untitled Form" {
		t.Fatalf("blank name not defaulted: %v", body["form_name"])
	}
	formID := int64(body["form_id"].(float64))

	// numeric user_id is accepted too
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/forms/auto-save", map[string]any{
		"form_name": "Numeric owner",
		"fields":    fields,
		"user_id":   1,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("numeric user_id status = %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/forms/get-data", nil)
	if err != nil {
		t.Fatal(err)
	}
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var forms []map[string]any
	if err := json.NewDecoder(listResp.Body).Decode(&forms); err != nil {
		t.Fatalf("decode form list: %v", err)
	}
	if len(forms) != 2 {
		t.Fatalf("form count = %d, want 2", len(forms))
	}

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/forms/%d", srv.URL, formID), nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get form status = %d", resp.StatusCode)
	}
	if body["user_id"] != userID {
		t.Fatalf("form owner = %v, want %s", body["user_id"], userID)
	}

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/forms/update", map[string]any{
		"form_id":   formID,
		"form_name": "Renamed",
		"fields":    fields,
		"user_id":   userID,
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, body %v", resp.StatusCode, body)
	}
	if body["form_name"] != "Renamed" {
		t.Fatalf("update body = %v", body)
	}
}

func TestFormUpdateForbiddenForNonOwner(t *testing.T) {
	srv, _ := newTestServer(t)
	aliceID, aliceToken := registerAndLogin(t, srv.URL, "alice")
	_, bobToken := registerAndLogin(t, srv.URL, "bob")

	fields := []map[string]any{{"id": "f1", "type": "text", "label": "Name"}}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/forms/auto-save", map[string]any{
		"form_name": "Alice's form",
		"fields":    fields,
		"user_id":   aliceID,
	}, aliceToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("auto-save status = %d", resp.StatusCode)
	}
	formID := int64(body["form_id"].(float64))

	// bob's token overrides whatever user_id the body claims
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/forms/update", map[string]any{
		"form_id":   formID,
		"form_name": "Hijacked",
		"fields":    fields,
		"user_id":   aliceID,
	}, bobToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestFormNotFoundAndBadID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/forms/999", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing form status = %d, want 404", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/forms/not-a-number", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("bad id status = %d, want 404", resp.StatusCode)
	}
}

func snapshotPayload(formID int64, userID string) map[string]any {
	return map[string]any{
		"form_id":          formID,
		"form_name":        "Survey",
		"form_description": "desc",
		"form_elements":    []map[string]any{{"id": "e1", "type": "text", "label": "Name"}},
		"form_theme":       map[string]any{"primaryColor": "#1a73e8"},
		"user_id":          userID,
	}
}

func TestFormDataLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	userID, token := registerAndLogin(t, srv.URL, "alice")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/formdata/formdata", snapshotPayload(1, userID), token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", resp.StatusCode, body)
	}
	snapID := int64(body["id"].(float64))

	// latest by form id
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/formdata/formdata/1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("latest status = %d", resp.StatusCode)
	}
	if int64(body["id"].(float64)) != snapID {
		t.Fatalf("latest id = %v, want %d", body["id"], snapID)
	}

	// list by user
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/formdata/formdata/user/"+userID, nil)
	if err != nil {
		t.Fatal(err)
	}
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var snaps []map[string]any
	if err := json.NewDecoder(listResp.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshot count = %d, want 1", len(snaps))
	}

	// update
	payload := snapshotPayload(1, userID)
	payload["form_description"] = "edited"
	resp, body = doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/formdata/formdata/%d", srv.URL, snapID), payload, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, body %v", resp.StatusCode, body)
	}
	if body["form_description"] != "edited" {
		t.Fatalf("update body = %v", body)
	}

	// delete
	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/formdata/formdata/%d", srv.URL, snapID), nil, token)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/formdata/formdata/1", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("latest after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestFormDataOwnershipOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	aliceID, aliceToken := registerAndLogin(t, srv.URL, "alice")
	_, bobToken := registerAndLogin(t, srv.URL, "bob")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/formdata/formdata", snapshotPayload(1, aliceID), aliceToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	snapID := int64(body["id"].(float64))

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/formdata/formdata/%d", srv.URL, snapID), nil, bobToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user delete status = %d, want 403", resp.StatusCode)
	}

	// without any token the delete proceeds
	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/formdata/formdata/%d", srv.URL, snapID), nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("anonymous delete status = %d, want 204", resp.StatusCode)
	}
}

func TestFormDataValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	userID, token := registerAndLogin(t, srv.URL, "alice")

	payload := snapshotPayload(0, userID)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/formdata/formdata", payload, token)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing form_id status = %d, want 400", resp.StatusCode)
	}

	payload = snapshotPayload(1, userID)
	payload["form_elements"] = nil
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/formdata/formdata", payload, token)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("nil elements status = %d, want 400", resp.StatusCode)
	}
}

func TestQueryUsercred(t *testing.T) {
	srv, mem := newTestServer(t)
	registerAndLogin(t, srv.URL, "alice")

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/query/usercred", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rows status = %d", resp.StatusCode)
	}
	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(rows))
	}
	if _, leaked := rows[0]["password"]; leaked {
		t.Fatal("usercred rows leaked password column")
	}

	cresp, body := doJSON(t, http.MethodGet, srv.URL+"/api/query/usercred/columns", nil, "")
	if cresp.StatusCode != http.StatusOK {
		t.Fatalf("columns status = %d", cresp.StatusCode)
	}
	if _, ok := body["columns"].([]any); !ok {
		t.Fatalf("columns body = %v", body)
	}

	mem.SetCredentialTableMissing(true)
	mresp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/query/usercred", nil, "")
	if mresp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing table status = %d, want 404", mresp.StatusCode)
	}
}

func TestInvalidTokenIsRejectedWhenPresented(t *testing.T) {
	srv, _ := newTestServer(t)
	userID, _ := registerAndLogin(t, srv.URL, "alice")

	fields := []map[string]any{{"id": "f1", "type": "text", "label": "Name"}}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/forms/auto-save", map[string]any{
		"form_name": "Survey",
		"fields":    fields,
		"user_id":   userID,
	}, "not-a-real-token")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/auth/register", nil, "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/forms/get-data", nil, "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
