package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
)

// SubmissionDependencies defines the interface for scoring uploads.
type SubmissionDependencies interface {
	Submit(ctx context.Context, req types.SubmitRequest) (types.SubmitResponse, error)
}

// multipart parts beyond this stay on disk.
const formMemory = 4 << 20

// SubmissionsHandler handles prediction uploads.
type SubmissionsHandler struct {
	deps     SubmissionDependencies
	maxBytes int64
	log      logger.Logger
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps SubmissionDependencies, maxBytes int64, log logger.Logger) *SubmissionsHandler {
	if log == nil {
		log = logger.GetOrNop().Named("api")
	}
	return &SubmissionsHandler{deps: deps, maxBytes: maxBytes, log: log}
}

// HandlePostSubmission handles POST /submissions with a multipart form
// holding file, user and mode fields.
func (h *SubmissionsHandler) HandlePostSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_submission"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	if r.ContentLength > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", NewKind(op, ErrTooLarge))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(min(h.maxBytes, formMemory)); err != nil {
		h.writeFormError(w, op, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrMissingFile, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.writeFormError(w, op, err)
		return
	}

	req := types.SubmitRequest{
		SessionID: sessionID(w, r),
		UserID:    r.FormValue("user"),
		Modes:     parseModes(r.MultipartForm.Value["mode"]),
		Filename:  header.Filename,
		Data:      data,
	}
	resp, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error(r.Context(), "submission failed",
				logger.String("code", code),
				logger.Error(err))
		}
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SubmissionsHandler) writeFormError(w http.ResponseWriter, op string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrTooLarge, err))
		return
	}
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}
