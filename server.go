package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"i4.energy/across/gsmmodem/modem"
	"i4.energy/across/gsmmodem/pdu"
)

const apiPrefix = "/api/v1"

// Gateway is the part of *modem.Modem the HTTP API uses.
type Gateway interface {
	SendSMS(ctx context.Context, number, text string) (int, error)
	UnreadMessages(ctx context.Context) ([]modem.StoredMessage, error)
	ReadMessage(ctx context.Context, index int) (*pdu.Message, error)
	DeleteMessage(ctx context.Context, index int) error
	Manufacturer(ctx context.Context) (string, error)
	ServiceCenter(ctx context.Context) (string, error)
	Exec(ctx context.Context, cmd string) (modem.Response, error)
}

// SendRequest is the payload accepted by POST /api/v1/sms and on the MQTT
// send topic.
type SendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
	// ID is optional; one is generated when empty
	ID string `json:"id,omitempty"`
}

func (r *SendRequest) validate() error {
	if r.To == "" || r.Message == "" {
		return errors.New("both 'to' and 'message' fields are required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type SendResponse struct {
	ID    string `json:"id"`
	Parts int    `json:"parts"`
}

type DeviceInfo struct {
	Manufacturer  string `json:"manufacturer"`
	ServiceCenter string `json:"service_center"`
}

type ATRequest struct {
	Command  string   `json:"command"`
	Response []string `json:"response,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  Gateway
	// Hub streams received messages on /ws; nil disables the endpoint
	Hub *Hub
	// MergeParts reassembles concatenated messages in unread listings
	MergeParts bool

	once    sync.Once
	handler http.Handler
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(func() {
		s.handler = cors.AllowAll().Handler(s.routes())
	})
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	// Routes sit on the root router: a PathPrefix subrouter reports a method
	// mismatch as 404 instead of 405.
	r.HandleFunc(apiPrefix+"/sms", s.handleSMS).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/sms/unread", s.handleUnread).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/sms/{index:[0-9]+}", s.handleRead).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/sms/{index:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc(apiPrefix+"/device", s.handleDevice).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/at", s.handleAT).Methods(http.MethodPost)

	if s.Hub != nil {
		r.HandleFunc("/ws", s.Hub.ServeWS)
	}
	return r
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	respondJSON(w, statusCode, ErrorResponse{Message: message})
}

// fail logs err and answers with the status matching its kind.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	status := statusFor(err)
	attrs = append(attrs, "error", err, "path", r.URL.Path, "status", status)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("Request failed", attrs...)
	} else {
		s.Logger.Warn("Request rejected", attrs...)
	}
	s.sendError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pdu.ErrEncoding):
		return http.StatusBadRequest
	case errors.Is(err, modem.ErrTransportTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, modem.ErrDeviceRejected),
		errors.Is(err, modem.ErrMalformedResponse),
		errors.Is(err, pdu.ErrDecoding):
		return http.StatusBadGateway
	case errors.Is(err, modem.ErrAlreadyClosed),
		errors.Is(err, modem.ErrLoopStopped),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathIndex(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["index"])
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	parts, err := s.Modem.SendSMS(r.Context(), req.To, req.Message)
	if err != nil {
		s.fail(w, r, err, "id", req.ID, "to", req.To, "parts_sent", parts)
		return
	}

	s.Logger.Info("SMS sent successfully", "id", req.ID, "to", req.To, "parts", parts, "message_length", len(req.Message))
	respondJSON(w, http.StatusOK, SendResponse{ID: req.ID, Parts: parts})
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	stored, err := s.Modem.UnreadMessages(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	merge := s.MergeParts
	if v := r.URL.Query().Get("merge"); v != "" {
		merge, _ = strconv.ParseBool(v)
	}
	if !merge {
		respondJSON(w, http.StatusOK, stored)
		return
	}

	msgs := make([]*pdu.Message, len(stored))
	for i, sm := range stored {
		msgs[i] = sm.Message
	}
	respondJSON(w, http.StatusOK, pdu.Reassemble(msgs))
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.sendError(w, "invalid index", http.StatusBadRequest)
		return
	}
	msg, err := s.Modem.ReadMessage(r.Context(), index)
	if err != nil {
		s.fail(w, r, err, "index", index)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.sendError(w, "invalid index", http.StatusBadRequest)
		return
	}
	if err := s.Modem.DeleteMessage(r.Context(), index); err != nil {
		s.fail(w, r, err, "index", index)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	manufacturer, err := s.Modem.Manufacturer(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	smsc, err := s.Modem.ServiceCenter(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, DeviceInfo{Manufacturer: manufacturer, ServiceCenter: smsc})
}

// handleAT runs a raw command. A device that answers with an error still
// yields 200; the final result is in the body.
func (s *Server) handleAT(w http.ResponseWriter, r *http.Request) {
	var req ATRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		s.sendError(w, "command is required", http.StatusBadRequest)
		return
	}

	resp, err := s.Modem.Exec(r.Context(), req.Command)
	var devErr *modem.DeviceError
	switch {
	case errors.As(err, &devErr):
		req.Error = devErr.Line
	case err != nil:
		s.fail(w, r, err, "command", req.Command)
		return
	}
	req.Response = resp
	respondJSON(w, http.StatusOK, req)
}
