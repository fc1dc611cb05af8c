package message

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"chitchat/cmd/internal/auth/identity"
	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/go-playground/validator/v10"
)

const (
	formText  = "text"
	formMedia = "media"

	// Multipart framing allowance on top of MaxMediaBytes.
	multipartOverhead = 1 << 20
	multipartMemory   = 1 << 20
)

type sendRequest struct {
	SenderID    string `validate:"required,max=128"`
	RecipientID string `validate:"required,max=128,nefield=SenderID"`
	Text        string `validate:"max=4000,required_without=HasMedia"`
	HasMedia    bool
}

// Handler serves the message send and history endpoints.
type Handler struct {
	log      *slog.Logger
	store    Store
	media    MediaStore
	notifier Notifier
	resolver identity.Resolver
	validate *validator.Validate
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithMediaStore enables attachments. Without it, uploads carrying media are rejected.
func WithMediaStore(media MediaStore) HandlerOption {
	return func(h *Handler) {
		if h == nil || media == nil {
			return
		}
		h.media = media
	}
}

// WithNotifier sets the persistence-completion hook.
func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || n == nil {
			return
		}
		h.notifier = n
	}
}

// NewHandler constructs a Handler. A nil resolver trusts the userId query parameter.
func NewHandler(log *slog.Logger, store Store, resolver identity.Resolver, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if log == nil {
		log = slog.Default()
	}
	if resolver == nil {
		resolver = identity.QueryResolver{}
	}

	h := &Handler{
		log:      log,
		store:    store,
		resolver: resolver,
		notifier: NotifierFunc(func(context.Context, v1.Message) {}),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires message routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/v1/message/send/{recipientID}", h.handleSend)
	mux.HandleFunc("GET /api/v1/message/{counterpartID}", h.handleHistory)
}

// ---- handlers ----

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	caller, err := h.resolver.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxMediaBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds 10 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_form", "multipart form required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(formMedia)
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "invalid_form", "unreadable media part")
		return
	}

	req := sendRequest{
		SenderID:    caller.UserID,
		RecipientID: strings.TrimSpace(r.PathValue("recipientID")),
		Text:        strings.TrimSpace(r.FormValue(formText)),
		HasMedia:    file != nil,
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	ctx := r.Context()

	var media *v1.Media
	if file != nil {
		ref, err := h.saveMedia(ctx, header, file)
		if err != nil {
			switch {
			case errors.Is(err, ErrMediaTooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds 10 MiB")
			case errors.Is(err, ErrMediaEmpty), errors.Is(err, errMediaDisabled):
				writeError(w, http.StatusBadRequest, "invalid_media", err.Error())
			default:
				h.log.ErrorContext(ctx, "message.media.fail", "err", err)
				writeError(w, http.StatusInternalServerError, "media_failed", "could not store media")
			}
			return
		}
		media = &ref
	}

	m, err := h.store.Persist(ctx, PersistInput{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Text:        req.Text,
		Media:       media,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid message")
			return
		}
		h.log.ErrorContext(ctx, "message.persist.fail", "sender_id", req.SenderID, "err", err)
		writeError(w, http.StatusInternalServerError, "persist_failed", "could not save message")
		return
	}

	h.log.InfoContext(ctx, "message.persisted", "message_id", m.ID, "sender_id", m.SenderID, "recipient_id", m.RecipientID, "media", m.Media != nil)
	writeJSON(w, http.StatusCreated, m)

	// Fanout outlives the request; the response never waits on the recipient.
	h.notifier.MessagePersisted(context.WithoutCancel(ctx), m)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller, err := h.resolver.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	counterpart := strings.TrimSpace(r.PathValue("counterpartID"))
	if counterpart == "" || counterpart == caller.UserID {
		writeError(w, http.StatusBadRequest, "invalid_request", "counterpart required")
		return
	}

	q := HistoryQuery{}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		q.Limit = n
	}

	msgs, err := h.store.History(r.Context(), caller.UserID, counterpart, q)
	if err != nil {
		h.log.ErrorContext(r.Context(), "message.history.fail", "user_id", caller.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "could not load history")
		return
	}
	if msgs == nil {
		msgs = []v1.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: msgs})
}

var errMediaDisabled = errors.New("attachments are disabled")

func (h *Handler) saveMedia(ctx context.Context, header *multipart.FileHeader, file multipart.File) (v1.Media, error) {
	if h.media == nil {
		return v1.Media{}, errMediaDisabled
	}
	if header.Size > MaxMediaBytes {
		return v1.Media{}, ErrMediaTooLarge
	}
	return h.media.Save(ctx, header.Filename, file)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	switch fe := verrs[0]; fe.Field() + "." + fe.Tag() {
	case "SenderID.required":
		return "sender identity required"
	case "RecipientID.required":
		return "recipient required"
	case "RecipientID.nefield":
		return "cannot message yourself"
	case "Text.max":
		return "message too long: max=4000 chars"
	case "Text.required_without":
		return "text or media required"
	default:
		return fe.Field() + " is invalid"
	}
}
