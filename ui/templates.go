package ui

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFiles embed.FS

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFiles, "templates/*.html")
}

// renderTemplate executes into a buffer first so a failed render never sends a partial page
func (s *Server) renderTemplate(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Template rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write page", "error", err)
	}
}

type indexPage struct {
	SignedIn bool
	Identity string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.auth.Current()
	s.renderTemplate(w, "index.html", indexPage{
		SignedIn: sess.SignedIn(),
		Identity: sess.Identity.String(),
	})
}
