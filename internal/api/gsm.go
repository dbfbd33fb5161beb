package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/fieldgate/internal/ingest"
)

// handleGSMUpload accepts a report batch from a GSM modem.
//
// The modem only needs to know the upload arrived, so 204 is written and
// flushed before the body is decoded. Decode and admission problems are
// logged, never returned.
func (s *Server) handleGSMUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "upload too large")
			return
		}
		writeBadRequest(w, "reading upload body failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
	//nolint:errcheck // Flush is best effort; the status is sent on return anyway
	http.NewResponseController(w).Flush()

	gsmTime := ingest.ParseGSMTime(r.URL.Query().Get("time"))
	n, err := s.ingester.Ingest(gsmTime, body)
	if err != nil {
		s.logger.Warn("gsm upload rejected",
			"error", err,
			"bytes", len(body),
			"seq", r.Context().Value(ctxKeyRequestSeq),
		)
		return
	}
	s.logger.Info("gsm upload received",
		"reports", n,
		"gsm_time", gsmTime,
		"seq", r.Context().Value(ctxKeyRequestSeq),
	)
}
