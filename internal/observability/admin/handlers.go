package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"

	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 1000
)

// Handler returns the routed, authenticated mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /jobs", s.listJobs)
	mux.HandleFunc("GET /jobs/{id}", s.getJob)
	mux.HandleFunc("GET /groups", s.listGroups)
	mux.HandleFunc("POST /groups/{group}/pause", s.pauseGroup)
	mux.HandleFunc("POST /groups/{group}/resume", s.resumeGroup)
	mux.HandleFunc("GET /runs", s.recentRuns)

	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return s.withAuth(mux)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("group") != "":
		s.writeJSON(w, http.StatusOK, s.sched.JobsByGroup(q.Get("group")))
	case q.Get("tag") != "":
		s.writeJSON(w, http.StatusOK, s.sched.JobsByTag(q.Get("tag")))
	default:
		s.writeJSON(w, http.StatusOK, s.sched.Snapshot())
	}
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	ji, err := s.sched.Job(r.PathValue("id"))
	if errors.Is(err, scheduler.ErrUnknownJob) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ji)
}

func (s *Server) listGroups(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sched.Groups())
}

type groupResult struct {
	Group   string `json:"group"`
	Changed int    `json:"changed"`
}

func (s *Server) pauseGroup(w http.ResponseWriter, r *http.Request) {
	g := r.PathValue("group")
	n := s.sched.PauseGroup(g)
	s.log.Info("group paused via admin", logx.String("group", g), logx.Int("jobs", n))
	s.writeJSON(w, http.StatusOK, groupResult{Group: g, Changed: n})
}

func (s *Server) resumeGroup(w http.ResponseWriter, r *http.Request) {
	g := r.PathValue("group")
	n := s.sched.ResumeGroup(g)
	s.log.Info("group resumed via admin", logx.String("group", g), logx.Int("jobs", n))
	s.writeJSON(w, http.StatusOK, groupResult{Group: g, Changed: n})
}

func (s *Server) recentRuns(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("history disabled"))
		return
	}
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunLimit)
	}
	runs, err := s.hist.RecentRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("admin response write failed", logx.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func (s *Server) withAuth(next http.Handler) http.Handler {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
