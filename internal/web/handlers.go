package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/josephlewis42/magpie/internal/config"
	"github.com/josephlewis42/magpie/internal/report"
	"github.com/josephlewis42/magpie/internal/submission"
)

// ---- view models ----

// IndexData is the upload page.
type IndexData struct {
	Title        string
	Instructions template.HTML
	MOTD         template.HTML
	Tests        []string
	Recent       []SubmissionRow
}

// SubmissionRow is one line of the recent-submissions table.
type SubmissionRow struct {
	ID        string
	User      string
	Frontend  string
	Test      string
	Files     string
	Passed    bool
	CreatedAt string
}

// ResultsData is the results page for one submission.
type ResultsData struct {
	Title  string
	Doc    *submission.Document
	Body   template.HTML
	Passed int
	Failed int
}

// ConfigData lists the test configurations.
type ConfigData struct {
	Title string
	Tests []TestView
}

// TestView is a test configuration rendered as YAML.
type TestView struct {
	Name        string
	Description string
	YAML        string
}

// EditData is the test configuration editor.
type EditData struct {
	Title string
	Name  string
	Value string
	Error string
}

// ---- helpers ----

func relTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func (s *Server) execTemplate(w http.ResponseWriter, status int, tmpl *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		s.logger.Error("render template", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) markdown(src string) template.HTML {
	out, err := report.Markdown(src)
	if err != nil {
		s.logger.Warn("render markdown", zap.Error(err))
		return template.HTML(template.HTMLEscapeString(src))
	}
	return out
}

// ---- Upload ----

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cfg := s.magpie.Config()
	data := IndexData{
		Title:        cfg.Server.Title,
		Instructions: s.markdown(cfg.Server.UploadInstructions),
		MOTD:         s.markdown(cfg.Server.MessageOfTheDay),
		Tests:        s.magpie.TestNames(),
		Recent:       s.recentSubmissions(10),
	}
	s.execTemplate(w, http.StatusOK, s.indexTmpl, data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			http.Error(w, "no file uploaded", http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("reading upload: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var uploads []*multipart.FileHeader
	for _, fh := range r.MultipartForm.File["upfile"] {
		if fh.Filename != "" {
			uploads = append(uploads, fh)
		}
	}
	if len(uploads) == 0 {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}

	doc := submission.New(userFor(r), "HTTP", r.FormValue("test"))
	for _, fh := range uploads {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, err = s.store.AddFile(doc, fh.Filename, f)
		f.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := s.magpie.Submit(r.Context(), doc); err != nil {
		s.logger.Error("submit", zap.String("document", doc.ID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.Save(doc); err != nil {
		s.logger.Warn("saving document", zap.String("document", doc.ID), zap.Error(err))
	}
	s.renderResults(w, doc)
}

func (s *Server) renderResults(w http.ResponseWriter, doc *submission.Document) {
	cfg := s.magpie.Config()
	body, err := report.Body(doc, report.Options{
		Header: cfg.Server.ResultsHeader,
		Footer: cfg.Server.ResultsFooter,
		Labels: cfg.Labels,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	passed, failed := doc.Counts()
	s.execTemplate(w, http.StatusOK, s.resultsTmpl, ResultsData{
		Title:  cfg.Server.Title,
		Doc:    doc,
		Body:   body,
		Passed: passed,
		Failed: failed,
	})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var doc *submission.Document
	var err error
	if s.db != nil {
		doc, err = s.db.LoadDocument(id)
	} else {
		// Unknown and malformed IDs are both simply not found.
		doc, _ = s.store.Get(id)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.NotFound(w, r)
		return
	}
	s.renderResults(w, doc)
}

// ---- Test configuration ----

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	data := ConfigData{Title: s.magpie.Config().Server.Title}
	for _, name := range s.magpie.TestNames() {
		t, _ := s.magpie.TestConfiguration(name)
		out, err := yaml.Marshal(t)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Tests = append(data.Tests, TestView{Name: name, Description: t.Description, YAML: string(out)})
	}
	s.execTemplate(w, http.StatusOK, s.configTmpl, data)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	t, ok := s.magpie.TestConfiguration(name)
	if !ok {
		t = s.magpie.DefaultTestConfiguration()
	}
	out, err := yaml.Marshal(t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.execTemplate(w, http.StatusOK, s.editTmpl, EditData{
		Title: s.magpie.Config().Server.Title,
		Name:  name,
		Value: string(out),
	})
}

func (s *Server) handleSaveTest(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	value := r.FormValue("test")

	var t config.Test
	dec := yaml.NewDecoder(strings.NewReader(value))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		s.execTemplate(w, http.StatusBadRequest, s.editTmpl, EditData{
			Title: s.magpie.Config().Server.Title,
			Name:  name,
			Value: value,
			Error: fmt.Sprintf("Could not read the configuration: %v", err),
		})
		return
	}
	if err := s.magpie.SetTestConfiguration(name, t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.saveConfig(w) {
		return
	}
	http.Redirect(w, r, "/config", http.StatusSeeOther)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.magpie.DeleteTestConfiguration(r.PathValue("name")) && !s.saveConfig(w) {
		return
	}
	http.Redirect(w, r, "/config", http.StatusFound)
}

func (s *Server) handleNewTest(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = "New Test"
	}
	http.Redirect(w, r, "/edit/"+url.PathEscape(name), http.StatusSeeOther)
}

func (s *Server) saveConfig(w http.ResponseWriter) bool {
	if err := s.magpie.SaveConfig(); err != nil {
		s.logger.Error("saving configuration", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	return true
}

func baseNames(files []string) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	return strings.Join(names, ", ")
}
