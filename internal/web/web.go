package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ttcal/internal/config"
	appLog "ttcal/internal/log"
	"ttcal/internal/model"
	"ttcal/internal/pipeline"
	"ttcal/internal/timetable"
)

// EventSource provides the raw events JSON, regenerating it first when
// needed. *extract.Cache implements it.
type EventSource interface {
	Ensure(ctx context.Context) error
	Open() (io.ReadCloser, error)
}

// Server serves the course selection form and the generated calendars.
type Server struct {
	cfg     *config.Config
	courses model.Courses
	source  EventSource
	pipe    *pipeline.Pipeline
	router  *mux.Router

	// seriesErr is the weekday check of the default-course series for
	// the pipeline's reference year, nil when every date fits.
	seriesErr error
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, pipe *pipeline.Pipeline, source EventSource) *Server {
	s := &Server{
		cfg:     cfg,
		courses: pipe.Courses,
		source:  source,
		pipe:    pipe,
		router:  mux.NewRouter(),

		seriesErr: timetable.VerifySeries(pipe.Year),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

// StartServer serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.router.Use(timingMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/timetable", s.handleTimetable).Methods(http.MethodGet)
	s.router.HandleFunc("/api/courses", s.handleCourses).Methods(http.MethodGet)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials leave the server open.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ttcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func timingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		client := r.RemoteAddr
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			client += " (" + fwd + ")"
		}
		appLog.Debug("served", "path", r.URL.Path, "client", client, "took", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8">
		<title>Timetable</title>
		<style>
			ul {
				list-style-type: none;
			}
		</style>
	</head>
	<body>
		<form action="/">
			Courses: <ul>
{{- range .Courses}}
				<li><label><input type="checkbox" name="{{.ID}}"{{if .Checked}} checked="checked"{{end}}>{{.ID}}: {{.Name}}</label></li>
{{- end}}
			</ul>
			<button type="submit">Remember choices (in URL)</button>
			<button type="submit" name="action" value="url" formaction="/timetable">Get ICS URL</button>
			<button type="submit" name="action" value="download" formaction="/timetable">Download ICS</button>
		</form>
	</body>
</html>
`))

type courseOption struct {
	ID      string
	Name    string
	Checked bool
}

// handleIndex renders the course selection form, pre-checking the
// courses present as "CRxx=on" in the query so choices survive in the URL.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	options := make([]courseOption, 0, len(s.courses))
	for _, id := range s.courses.IDs() {
		options = append(options, courseOption{
			ID:      id,
			Name:    s.courses[id].Name,
			Checked: q.Get(id) == "on",
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct{ Courses []courseOption }{options}); err != nil {
		appLog.Error("failed to render index", err)
	}
}

// handleTimetable generates the calendar for the selection in the query.
//
// GET /timetable?CR03=on&CR05=on&action=download
//   - action=download adds an attachment Content-Disposition
//   - anything else serves the calendar inline (subscription URL)
func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	sel := model.SelectionFromQuery(s.courses, q)

	if err := s.source.Ensure(ctx); err != nil {
		appLog.Error("events unavailable", err)
		http.Error(w, "timetable events unavailable", http.StatusServiceUnavailable)
		return
	}

	rc, err := s.source.Open()
	if err != nil {
		appLog.Error("events unavailable", err)
		http.Error(w, "timetable events unavailable", http.StatusServiceUnavailable)
		return
	}
	defer rc.Close()

	out, err := s.pipe.Run(rc, sel)
	if err != nil {
		appLog.Error("calendar generation failed", err)
		http.Error(w, "calendar generation failed", http.StatusInternalServerError)
		return
	}
	if s.seriesErr != nil && sel.Chosen(model.CourseID(timetable.SeriesCourseNumber)) {
		appLog.Warn("serving default-course series off its weekdays", "year", s.pipe.Year, "err", s.seriesErr)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if q.Get("action") == "download" {
		w.Header().Set("Content-Disposition", "attachment; filename="+s.cfg.DownloadFilename)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// courseDTO is the JSON view of one course for /api/courses.
type courseDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Teachers string `json:"teachers"`
}

func (s *Server) handleCourses(w http.ResponseWriter, _ *http.Request) {
	out := make([]courseDTO, 0, len(s.courses))
	for _, id := range s.courses.IDs() {
		c := s.courses[id]
		out = append(out, courseDTO{ID: id, Name: c.Name, Teachers: c.Teachers})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
