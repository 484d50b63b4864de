// Package api serves the relay's HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/extract"
	"github.com/loqalabs/voicechat/internal/identity"
	"github.com/loqalabs/voicechat/internal/protocol"
	"github.com/loqalabs/voicechat/internal/relay"
	"github.com/loqalabs/voicechat/internal/stt"
	"golang.org/x/time/rate"
)

const maxJSONBody = 1 << 16

// Relay answers exchanges.
type Relay interface {
	Reply(ctx context.Context, text string) (relay.Reply, error)
	ReplyToFile(ctx context.Context, doc extract.Document, question string) (relay.Reply, error)
	LLMEnabled() bool
	TTSEnabled() bool
}

// Accounts backs the email/password auth endpoints.
type Accounts interface {
	Register(ctx context.Context, email, password, displayName string) (*identity.User, error)
	Authenticate(ctx context.Context, email, password string) (*identity.User, error)
}

type Options struct {
	Relay      Relay
	Recognizer stt.Recognizer
	Accounts   Accounts
	Config     config.RelayConfig
	Logger     *slog.Logger
}

type Server struct {
	relay      Relay
	recognizer stt.Recognizer
	accounts   Accounts
	cfg        config.RelayConfig
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New builds a server. A nil Recognizer or Accounts disables the matching
// endpoints.
func New(opts Options) *Server {
	limit := rate.Inf
	if opts.Config.RateLimit > 0 {
		limit = rate.Limit(opts.Config.RateLimit)
	}
	burst := opts.Config.RateBurst
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(opts.Config.RateLimit)))
	}
	return &Server{
		relay:      opts.Relay,
		recognizer: opts.Recognizer,
		accounts:   opts.Accounts,
		cfg:        opts.Config,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     opts.Logger.With(slog.String("component", "api")),
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/chat", s.limited(s.handleChat))
	mux.Handle("POST /api/chat/file", s.limited(s.handleChatFile))
	mux.Handle("POST /api/transcribe", s.limited(s.handleTranscribe))
	mux.HandleFunc("GET /api/capabilities", s.handleCapabilities)
	mux.Handle("POST /api/auth/register", s.limited(s.handleRegister))
	mux.Handle("POST /api/auth/login", s.limited(s.handleLogin))
}

func (s *Server) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests; slow down")
			return
		}
		next(w, r)
	})
}

func (s *Server) Capabilities() protocol.Capabilities {
	llmOn := s.relay != nil && s.relay.LLMEnabled()
	return protocol.Capabilities{
		LLM:      llmOn,
		TTS:      s.relay != nil && s.relay.TTSEnabled(),
		STT:      s.recognizer != nil,
		FileChat: llmOn,
	}
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Capabilities())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.relay.Reply(r.Context(), req.Text)
	if err != nil {
		s.writeRelayError(w, err)
		return
	}
	writeReply(w, reply)
}

func (s *Server) handleChatFile(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(protocol.FieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	doc := extract.Document{Name: header.Filename, Data: data}
	reply, err := s.relay.ReplyToFile(r.Context(), doc, r.FormValue(protocol.FieldQuestion))
	if err != nil {
		s.writeRelayError(w, err)
		return
	}
	writeReply(w, reply)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.recognizer == nil {
		writeError(w, http.StatusServiceUnavailable, "speech recognition is disabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "recording is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read recording")
		return
	}
	clip, err := stt.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, stt.ErrInvalidWAV.Error())
		return
	}
	result, err := s.recognizer.Transcribe(r.Context(), clip.PCM, clip.SampleRate, clip.Channels)
	if err != nil {
		s.logger.Warn("transcription failed", slogError(err))
		writeError(w, http.StatusBadGateway, "transcription failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, protocol.Transcript{Text: result.Text, Confidence: result.Confidence})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeError(w, http.StatusNotFound, "accounts are disabled")
		return
	}
	var creds protocol.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	user, err := s.accounts.Register(r.Context(), creds.Email, creds.Password, creds.DisplayName)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.logger.Info("account registered", slog.String("uid", user.UID))
	writeJSON(w, http.StatusCreated, identity.ToWire(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeError(w, http.StatusNotFound, "accounts are disabled")
		return
	}
	var creds protocol.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	user, err := s.accounts.Authenticate(r.Context(), creds.Email, creds.Password)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identity.ToWire(user))
}

func (s *Server) writeRelayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relay.ErrEmptyText):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, extract.ErrUnsupported):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, extract.ErrEmpty):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, relay.ErrLLMDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("exchange timed out", slogError(err))
		writeError(w, http.StatusGatewayTimeout, "the assistant took too long to answer")
	default:
		s.logger.Error("exchange failed", slogError(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("account operation failed", slogError(err))
		writeError(w, http.StatusInternalServerError, "account service unavailable")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

func writeReply(w http.ResponseWriter, reply relay.Reply) {
	writeJSON(w, http.StatusOK, protocol.ChatResponse{
		ReplyText:   &reply.Text,
		AudioBase64: &reply.AudioBase64,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
