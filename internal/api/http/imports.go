package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	auth "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/auth/middleware"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/importer"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/rbac"
)

const defaultMaxUpload = 32 << 20

type ImportDeps struct {
	Importer  *importer.Importer
	Sessions  *importer.Registry
	Sheet     string // worksheet for .xlsx uploads; empty = first
	MaxUpload int64
	// Timeout bounds every step except run, which always goes to the end.
	Timeout time.Duration
	Log     logrus.FieldLogger
}

// MountImports registers the import workflow under r.
func MountImports(r chi.Router, d ImportDeps) {
	r.With(rbac.Require(rbac.PermQuestionImport)).Post("/{id}/run", RunImportHandler(d))

	r.Group(func(r chi.Router) {
		if d.Timeout > 0 {
			r.Use(middleware.Timeout(d.Timeout))
		}
		r.With(rbac.Require(rbac.PermQuestionImport)).Post("/", CreateImportHandler(d))
		r.With(rbac.Require(rbac.PermImportView)).Get("/{id}", GetImportHandler(d.Sessions))
		r.With(rbac.Require(rbac.PermQuestionImport)).Post("/{id}/invalid", ConfirmInvalidHandler(d))
		r.With(rbac.Require(rbac.PermQuestionImport)).Post("/{id}/reconcile", ReconcileHandler(d))
		r.With(rbac.RequireAny(rbac.PermTaxonomyCreate)).Post("/{id}/taxonomy", ConfirmTaxonomyHandler(d))
		r.With(rbac.Require(rbac.PermQuestionImport)).Delete("/{id}", DeleteImportHandler(d.Sessions))
	})
}

// POST /imports  (multipart: file=paper.docx|.txt|.md|.xlsx, or JSON {"source","text"})
func CreateImportHandler(d ImportDeps) http.HandlerFunc {
	limit := d.MaxUpload
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		var (
			s   *importer.Session
			err error
		)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var req struct {
				Source string `json:"source"`
				Text   string `json:"text"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			if strings.TrimSpace(req.Text) == "" {
				http.Error(w, "text required", http.StatusBadRequest)
				return
			}
			if req.Source == "" {
				req.Source = "pasted text"
			}
			s = d.Importer.ParseText(req.Source, req.Text)
		} else {
			f, hdr, ferr := r.FormFile("file")
			if ferr != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			s, err = parseUpload(d, hdr.Filename, f, r.FormValue("sheet"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		s.Owner = auth.Owner(r.Context())
		d.Sessions.Put(s)
		d.Log.WithFields(logrus.Fields{"session": s.ID, "source": s.Source, "owner": s.Owner}).
			Info("import session created")
		writeStatus(w, http.StatusCreated, s)
	}
}

func parseUpload(d ImportDeps, name string, f io.Reader, sheet string) (*importer.Session, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		if sheet == "" {
			sheet = d.Sheet
		}
		return d.Importer.ParseWorkbook(name, f, sheet)
	default:
		return d.Importer.ParseDocument(name, f)
	}
}

// GET /imports/{id}
func GetImportHandler(reg *importer.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := reg.Get(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeStatus(w, http.StatusOK, s)
	}
}

// DELETE /imports/{id}
func DeleteImportHandler(reg *importer.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, reg)
		if !ok {
			return
		}
		reg.Delete(s.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /imports/{id}/invalid  {"proceed": true|false}
func ConfirmInvalidHandler(d ImportDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, d.Sessions)
		if !ok {
			return
		}
		var req struct {
			Proceed bool `json:"proceed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := d.Importer.ConfirmInvalid(s, req.Proceed); err != nil && !errors.Is(err, importer.ErrCancelled) {
			writeError(w, err)
			return
		}
		writeStatus(w, http.StatusOK, s)
	}
}

// POST /imports/{id}/reconcile
func ReconcileHandler(d ImportDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, d.Sessions)
		if !ok {
			return
		}
		if err := d.Importer.Reconcile(r.Context(), s); err != nil {
			writeError(w, err)
			return
		}
		writeStatus(w, http.StatusOK, s)
	}
}

// POST /imports/{id}/taxonomy  {"confirm": true|false}; an empty body confirms.
func ConfirmTaxonomyHandler(d ImportDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, d.Sessions)
		if !ok {
			return
		}
		req := struct {
			Confirm bool `json:"confirm"`
		}{Confirm: true}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		var err error
		if req.Confirm {
			err = d.Importer.ConfirmTaxonomy(r.Context(), s)
		} else {
			err = d.Importer.DeclineTaxonomy(s)
		}
		if err != nil && !errors.Is(err, importer.ErrCancelled) {
			writeError(w, err)
			return
		}
		writeStatus(w, http.StatusOK, s)
	}
}

// POST /imports/{id}/run
func RunImportHandler(d ImportDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, d.Sessions)
		if !ok {
			return
		}
		start := time.Now()
		// the client going away must not cut an import short
		res, err := d.Importer.Run(context.WithoutCancel(r.Context()), s, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		d.Log.WithFields(logrus.Fields{
			"session":   s.ID,
			"succeeded": res.SuccessCount,
			"failed":    res.FailedCount,
			"took":      time.Since(start).String(),
		}).Info("import run finished")
		writeStatus(w, http.StatusOK, s)
	}
}

// ownedSession loads the {id} session and checks that the caller owns it
// or may act on anyone's sessions.
func ownedSession(w http.ResponseWriter, r *http.Request, reg *importer.Registry) (*importer.Session, bool) {
	s, ok := reg.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	if !rbac.CanActOn(rbac.RoleFromContext(r.Context()), auth.Owner(r.Context()), s.Owner) {
		http.Error(w, "session belongs to another user", http.StatusForbidden)
		return nil, false
	}
	return s, true
}

func writeStatus(w http.ResponseWriter, code int, s *importer.Session) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(s.Status())
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, importer.ErrInvalidState) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
