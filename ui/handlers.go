package ui

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"riskboard/domain/dataset"
	dexport "riskboard/domain/export"
	"riskboard/internal/errors"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.Current())
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.auth.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.auth.SignUp(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.auth.Current())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.uploads.Health(ctx); err != nil {
		s.logger.Debug("prediction backend unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleTemplate serves the sample file, or redirects to its direct link when the fetch fails
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	data, link, err := s.uploads.Template(r.Context())
	if err != nil {
		http.Redirect(w, r, link, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sample_patients.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		// multipart framing needs a little room beyond the file itself
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeError(w, errors.InvalidInput(fmt.Sprintf("File is too large. The limit is %s", formatBytes(s.opts.MaxUploadBytes))))
			return
		}
		s.writeError(w, errors.InvalidInput("No file was uploaded"))
		return
	}
	defer file.Close()

	up := dataset.Upload{
		FileRef: dataset.FileRef{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Size:     header.Size,
		},
		Content: file,
	}
	batch, err := s.uploads.Upload(r.Context(), up)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.uploads.ClearError()
	writeJSON(w, http.StatusOK, s.uploads.Snapshot())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.uploads.Snapshot())
}

// handleExport streams the latest batch as an attachment; 204 when there is nothing to export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := dexport.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	batch, ok := s.uploads.Results()
	if !ok || len(batch.Records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	outcome, err := s.exports.ExportAs(r.Context(), batch.Records, format, responseSink{w: w})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !outcome.Exported {
		w.WriteHeader(http.StatusNoContent)
	}
}

// responseSink delivers an export as the HTTP response body
type responseSink struct {
	w http.ResponseWriter
}

func (rs responseSink) Deliver(ctx context.Context, file dexport.ExportedFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h := rs.w.Header()
	h.Set("Content-Type", file.ContentType)
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Name))
	h.Set("Content-Length", strconv.Itoa(len(file.Data)))
	rs.w.WriteHeader(http.StatusOK)
	_, err := rs.w.Write(file.Data)
	return err
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return errors.InvalidInput("Request body must be valid JSON")
	}
	return nil
}

// formatBytes renders a size limit in the largest whole unit
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
