// Package admin serves a small HTTP surface for inspecting and steering the
// scheduler: job snapshots, group pause/resume, recent runs, and optionally
// pprof.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"cronjure/internal/runtime/supervisor"
	"cronjure/internal/scheduler"
	"cronjure/internal/storage"
	"cronjure/pkg/logx"
)

const defaultAddr = "127.0.0.1:8089"

// Config controls the admin server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Scheduler is the part of *scheduler.Service the server uses.
type Scheduler interface {
	Snapshot() []scheduler.JobInfo
	Job(id string) (scheduler.JobInfo, error)
	Groups() []string
	JobsByGroup(group string) []scheduler.JobInfo
	JobsByTag(tag string) []scheduler.JobInfo
	PauseGroup(group string) int
	ResumeGroup(group string) int
}

// History is optional; nil disables /runs.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

type Server struct {
	cfg   Config
	log   logx.Logger
	sched Scheduler
	hist  History

	mu    sync.Mutex
	sup   *supervisor.Supervisor
	bound string
}

func New(cfg Config, sched Scheduler, hist History, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaultAddr
	}
	return &Server{cfg: cfg, sched: sched, hist: hist, log: log.With(logx.String("comp", "admin"))}
}

// Addr is the bound listen address, or "" when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Start serves in the background under a restart loop. It refuses a
// non-loopback bind without a token unless AllowInsecure is set.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.AllowInsecure && s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		return errors.New("admin: non-loopback addr requires token or allow_insecure")
	}
	if s.cfg.AllowInsecure && s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		s.log.Warn("admin running without token on non-loopback addr (insecure)", logx.String("addr", s.cfg.Addr))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.GoRestart("admin.http", s.serveOnce, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	s.log.Info("admin stopped")
	return err
}

func (s *Server) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("admin listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
		case <-exited:
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.mu.Lock()
	s.bound = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("admin started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""), logx.Bool("pprof", s.cfg.Pprof))

	err = srv.Serve(ln)

	s.mu.Lock()
	s.bound = ""
	s.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("admin server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
