package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/smallwat3r/secretlink/internal/domain"
	"github.com/smallwat3r/secretlink/internal/envelope"
	"github.com/smallwat3r/secretlink/internal/store"
	"github.com/smallwat3r/secretlink/internal/utility"
)

// HandlerConfig is the server policy the handlers enforce and advertise.
type HandlerConfig struct {
	GateMode    string
	TTL         time.Duration
	MaxAttempts int
}

type Handler struct {
	store store.Store
	cfg   HandlerConfig
}

func NewHandler(s store.Store, cfg HandlerConfig) *Handler {
	if cfg.GateMode == "" {
		cfg.GateMode = domain.GateServer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.MaxPasswordAttempts
	}
	return &Handler{store: s, cfg: cfg}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	utility.WriteJSON(w, http.StatusOK, domain.InfoRes{
		GateMode:    h.cfg.GateMode,
		TTL:         h.cfg.TTL.String(),
		MaxAttempts: h.cfg.MaxAttempts,
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReq
	if err := utility.DecodeJSON(r, &req); err != nil {
		utility.HttpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Ciphertext == "" {
		utility.HttpError(w, http.StatusBadRequest, domain.ErrEmptyCiphertext.Error())
		return
	}
	if len(req.Ciphertext) > domain.MaxSecretSize {
		utility.HttpError(w, http.StatusRequestEntityTooLarge, domain.ErrSecretTooLarge.Error())
		return
	}
	if req.PasswordVerifier != "" &&
		(len(req.PasswordVerifier) > domain.MaxVerifierSize || !envelope.ValidVerifier(req.PasswordVerifier)) {
		utility.HttpError(w, http.StatusBadRequest, "invalid password verifier")
		return
	}

	rec, err := h.store.Create(r.Context(), domain.Envelope{
		Ciphertext:       req.Ciphertext,
		PasswordVerifier: req.PasswordVerifier,
	})
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().
		Bool("protected", req.PasswordVerifier != "").
		Time("expires_at", rec.ExpiresAt).
		Msg("secret created")
	utility.WriteJSON(w, http.StatusCreated, domain.CreateRes{ID: rec.ID, ExpiresAt: rec.ExpiresAt})
}

// HandleFetch hands out the record and removes it. With server gating a
// protected record stays put and the caller is told to claim it instead.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !domain.ValidID(id) {
		utility.HttpError(w, http.StatusBadRequest, domain.ErrInvalidID.Error())
		return
	}

	var (
		rec domain.Record
		err error
	)
	if h.cfg.GateMode == domain.GateServer {
		rec, err = h.store.Claim(r.Context(), id, nil)
	} else {
		rec, err = h.store.FetchAndDelete(r.Context(), id)
	}
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	utility.WriteJSON(w, http.StatusOK, domain.FetchRes{
		Ciphertext:       rec.Ciphertext,
		PasswordVerifier: rec.PasswordVerifier,
	})
}

func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req domain.ClaimReq
	if err := utility.DecodeJSON(r, &req); err != nil {
		utility.HttpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !domain.ValidID(req.ID) {
		utility.HttpError(w, http.StatusBadRequest, domain.ErrInvalidID.Error())
		return
	}
	if req.Password == "" {
		utility.HttpError(w, http.StatusBadRequest, "password is required")
		return
	}

	rec, err := h.store.Claim(r.Context(), req.ID, envelope.PasswordMatcher(req.Password))
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	utility.WriteJSON(w, http.StatusOK, domain.FetchRes{Ciphertext: rec.Ciphertext})
}

// HandleDelete accepts the id as JSON body or query parameter. Deleting a
// secret that is already gone still succeeds.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" && r.ContentLength > 0 {
		var req domain.DeleteReq
		if err := utility.DecodeJSON(r, &req); err != nil {
			utility.HttpError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		id = req.ID
	}
	if !domain.ValidID(id) {
		utility.HttpError(w, http.StatusBadRequest, domain.ErrInvalidID.Error())
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, err)
		return
	}
	utility.WriteJSON(w, http.StatusOK, domain.DeleteRes{Status: "deleted"})
}

// storeError maps store outcomes to responses. Missing, expired and
// consumed records all read the same to the caller.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	var attemptErr *domain.AttemptError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		utility.HttpError(w, http.StatusNotFound, domain.ErrNotFound.Error())
	case errors.As(err, &attemptErr):
		utility.WriteJSON(w, http.StatusUnauthorized, domain.ErrorRes{
			Error:             domain.ErrPasswordMismatch.Error(),
			RemainingAttempts: utility.IntPtr(attemptErr.Remaining),
		})
	case errors.Is(err, domain.ErrPasswordRequired):
		utility.HttpError(w, http.StatusUnauthorized, domain.ErrPasswordRequired.Error())
	case errors.Is(err, domain.ErrLockedOut):
		hlog.FromRequest(r).Warn().Msg("secret destroyed after too many incorrect passwords")
		utility.HttpError(w, http.StatusGone, domain.ErrLockedOut.Error())
	case errors.Is(err, domain.ErrTransient):
		hlog.FromRequest(r).Error().Err(err).Msg("secret store unavailable")
		utility.HttpError(w, http.StatusServiceUnavailable, domain.ErrTransient.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("secret store failure")
		utility.HttpError(w, http.StatusInternalServerError, "internal error")
	}
}
