// Package resendtest provides an in-process fake of the Resend email API for
// tests. It accepts POST /emails with bearer authentication, validates the
// required fields the way the real service does, stores accepted messages
// and records every request it sees.
package resendtest

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	clienttls "github.com/shineum/resend-lite/internal/tls"
	"github.com/shineum/resend-lite/resend"
)

// Request is a request received by the server.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Email is an accepted message as decoded from the request body.
type Email struct {
	ID          string            `json:"id"`
	From        string            `json:"from"`
	To          resend.Recipients `json:"to"`
	Subject     string            `json:"subject"`
	Cc          resend.Recipients `json:"cc,omitempty"`
	Bcc         resend.Recipients `json:"bcc,omitempty"`
	ReplyTo     resend.Recipients `json:"reply_to,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Tags        []resend.Tag      `json:"tags,omitempty"`
	Attachments []map[string]any  `json:"attachments,omitempty"`
	HTML        string            `json:"html,omitempty"`
	Text        string            `json:"text,omitempty"`
}

type cannedResponse struct {
	status int
	body   []byte
}

// Server is a fake API server. Use URL as the client's base URL.
type Server struct {
	*httptest.Server

	// CertPEM is the server certificate of a NewTLSServer, nil otherwise.
	CertPEM []byte

	mu       sync.Mutex
	requests []Request
	emails   map[string]Email
	canned   *cannedResponse
}

// NewServer starts a Server. Callers should Close it when done.
func NewServer() *Server {
	s := &Server{emails: make(map[string]Email)}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// NewTLSServer starts a Server on HTTPS with a freshly generated self-signed
// certificate for localhost and 127.0.0.1. CertPEM holds that certificate so
// clients can trust it, for example through a CA file. Like
// httptest.NewTLSServer it panics if the server cannot be started.
func NewTLSServer() *Server {
	certPEM, keyPEM, err := clienttls.GenerateSelfSignedPEM()
	if err != nil {
		panic(fmt.Sprintf("resendtest: %v", err))
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		panic(fmt.Sprintf("resendtest: %v", err))
	}

	s := &Server{emails: make(map[string]Email), CertPEM: certPEM}
	s.Server = httptest.NewUnstartedServer(s.routes())
	s.Server.TLS = &tls.Config{Certificates: []tls.Certificate{cert}}
	s.StartTLS()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/emails", func(r chi.Router) {
		r.Use(bearerAuth)
		r.Use(s.override)

		r.Post("/", s.sendEmail)
		r.Get("/{id}", s.getEmail)
	})

	return r
}

// SetResponse makes every authenticated request to /emails answer with
// status and body instead of the normal handling.
func (s *Server) SetResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned = &cannedResponse{status: status, body: []byte(body)}
}

// Requests returns the requests received so far, oldest first.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Emails returns the accepted messages keyed by id.
func (s *Server) Emails() map[string]Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Email, len(s.emails))
	for id, e := range s.emails {
		out[id] = e
	}
	return out
}

// Email returns the accepted message with the given id.
func (s *Server) Email(id string) (Email, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	return e, ok
}

// record stores each request before it is routed.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) override(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		canned := s.canned
		s.mu.Unlock()

		if canned == nil {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(canned.status)
		w.Write(canned.body)
	})
}

func bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing_api_key",
				"Missing API key in the authorization header. Include the following header 'Authorization: Bearer re_123' in the request.")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" {
			writeError(w, http.StatusUnauthorized, "invalid_api_key",
				"Invalid authorization header format. Use 'Authorization: Bearer re_123'.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	var email Email
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "Invalid request body: "+err.Error())
		return
	}

	switch {
	case email.From == "":
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "The 'from' field is required.")
		return
	case len(email.To) == 0:
		writeError(w, http.StatusUnprocessableEntity, "validation_error",
			"The 'to' field is required and must contain at least one email address.")
		return
	case email.Subject == "":
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "The 'subject' field is required.")
		return
	}

	email.ID = uuid.NewString()

	s.mu.Lock()
	s.emails[email.ID] = email
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"id": email.ID})
}

func (s *Server) getEmail(w http.ResponseWriter, r *http.Request) {
	email, ok := s.Email(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Email not found")
		return
	}
	writeJSON(w, http.StatusOK, email)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
		"name":       name,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
