package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"formforge/internal/app"
	"formforge/pkg/auth"
	"formforge/pkg/domain"
	"formforge/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
}

// Server exposes the form-builder HTTP endpoints.
type Server struct {
	app *app.App
	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth; the auth_db family differs only in response envelope
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/token", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/me", s.handleMe)
	s.mux.HandleFunc("/api/auth_db/register", s.handleRegisterDB)
	s.mux.HandleFunc("/api/auth_db/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth_db/token", s.handleLogin)

	// forms
	s.mux.HandleFunc("/api/forms/auto-save", s.handleAutoSave)
	s.mux.HandleFunc("/api/forms/get-data", s.handleListForms)
	s.mux.HandleFunc("/api/forms/update", s.handleUpdateForm)
	s.mux.HandleFunc("/api/forms/", s.handleFormByID)

	// submission snapshots
	s.mux.HandleFunc("/api/formdata/formdata", s.handleCreateFormData)
	s.mux.HandleFunc("/api/formdata/formdata/", s.handleFormDataByPath)

	// maintenance queries
	s.mux.HandleFunc("/api/query/usercred", s.handleQueryUsercred)
	s.mux.HandleFunc("/api/query/usercred/columns", s.handleQueryUsercredColumns)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Form Builder API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        domain.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Register(req.Username, req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleRegisterDB(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Register(req.Username, req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "User registered successfully. Please log in with your credentials.",
		"user":    user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, ok := s.app.UserFromToken(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, app.ErrInvalidToken.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// form handlers

type formSaveRequest struct {
	FormName string             `json:"form_name"`
	Fields   []domain.FormField `json:"fields"`
	UserID   userID             `json:"user_id"`
}

type formUpdateRequest struct {
	FormID   int64              `json:"form_id"`
	FormName string             `json:"form_name"`
	Fields   []domain.FormField `json:"fields"`
	UserID   userID             `json:"user_id"`
}

func (s *Server) handleAutoSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req formSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := s.callerID(r, string(req.UserID))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	form, err := s.app.AutoSave(req.FormName, req.Fields, caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Form saved successfully",
		"form_id":    form.ID,
		"form_name":  form.Name,
		"user_id":    form.UserID,
		"fields":     form.Fields,
		"updated_at": form.UpdatedAt,
	})
}

func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	forms, err := s.app.ListForms()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req formUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := s.callerID(r, string(req.UserID))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	form, err := s.app.UpdateForm(req.FormID, req.FormName, req.Fields, caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Form updated successfully",
		"form_id":    form.ID,
		"form_name":  form.Name,
		"user_id":    form.UserID,
		"fields":     form.Fields,
		"updated_at": form.UpdatedAt,
	})
}

func (s *Server) handleFormByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/forms/")
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	form, err := s.app.GetForm(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// formdata handlers

type formDataRequest struct {
	FormID          int64                `json:"form_id"`
	FormName        string               `json:"form_name"`
	FormDescription string               `json:"form_description"`
	FormElements    []domain.FormElement `json:"form_elements"`
	FormTheme       *domain.FormTheme    `json:"form_theme"`
	UserID          userID               `json:"user_id"`
}

func (req formDataRequest) snapshot() domain.FormSnapshot {
	return domain.FormSnapshot{
		FormID:      req.FormID,
		Name:        req.FormName,
		Description: req.FormDescription,
		Elements:    req.FormElements,
		Theme:       req.FormTheme,
		UserID:      string(req.UserID),
	}
}

func (s *Server) handleCreateFormData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req formDataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := s.callerID(r, string(req.UserID))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	snap := req.snapshot()
	snap.UserID = caller
	saved, err := s.app.CreateSnapshot(snap)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleFormDataByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/formdata/formdata/")
	if userPath, ok := strings.CutPrefix(rest, "user/"); ok {
		s.handleFormDataByUser(w, r, userPath)
		return
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		// the path segment is a form id on reads
		snap, err := s.app.LatestSnapshot(id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case http.MethodPut:
		s.handleUpdateFormData(w, r, id)
	case http.MethodDelete:
		s.handleDeleteFormData(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleFormDataByUser(w http.ResponseWriter, r *http.Request, rawUserID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	snaps, err := s.app.SnapshotsByUser(normalizeUserID(rawUserID))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleUpdateFormData(w http.ResponseWriter, r *http.Request, id int64) {
	var req formDataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := s.optionalCaller(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if caller == "" {
		caller = string(req.UserID)
	}
	updated, err := s.app.UpdateSnapshot(id, req.snapshot(), caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFormData(w http.ResponseWriter, r *http.Request, id int64) {
	caller, err := s.optionalCaller(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.DeleteSnapshot(id, caller); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// maintenance query handlers

func (s *Server) handleQueryUsercred(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rows, err := s.app.CredentialRows()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleQueryUsercredColumns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	columns, err := s.app.CredentialColumns()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
}

// helpers

// callerID resolves the acting user: a valid bearer token wins, otherwise
// the user id supplied in the request body is trusted.
func (s *Server) callerID(r *http.Request, bodyUserID string) (string, error) {
	caller, err := s.optionalCaller(r)
	if err != nil {
		return "", err
	}
	if caller != "" {
		return caller, nil
	}
	return bodyUserID, nil
}

// optionalCaller returns the token subject when a bearer token is presented.
// A presented but invalid token is an error; an absent one is not.
func (s *Server) optionalCaller(r *http.Request) (string, error) {
	token, ok := bearerToken(r)
	if !ok {
		return "", nil
	}
	return s.app.VerifyToken(token)
}

// userID accepts both string ("001") and numeric (1) encodings, collapsing
// the legacy id-type discrepancy at the boundary.
type userID string

func (u *userID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = userID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*u = userID(domain.FormatUserID(n))
		return nil
	}
	return fmt.Errorf("invalid user_id")
}

func normalizeUserID(raw string) string {
	if seq, err := domain.ParseUserID(raw); err == nil {
		return domain.FormatUserID(seq)
	}
	return raw
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrFormNotFound), errors.Is(err, app.ErrSnapshotNotFound), errors.Is(err, store.ErrTableMissing):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		app.ErrUsernameTaken,
		app.ErrEmailTaken,
		app.ErrUsernameTooShort,
		app.ErrUsernameTooLong,
		app.ErrInvalidEmail,
		app.ErrUserIDRequired,
		app.ErrFieldsRequired,
		app.ErrFormIDRequired,
		app.ErrFormNameRequired,
		app.ErrElementsRequired,
		auth.ErrPasswordTooShort,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
