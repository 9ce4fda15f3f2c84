package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultLogFile = "./cronjure.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the configured sinks. Loggers it hands out always write
// through the most recent Apply.
type Service struct {
	mu       sync.Mutex
	file     *os.File
	filePath string

	root atomic.Pointer[zerolog.Logger]
}

// NewService applies cfg and returns the service with its root logger. A
// file that cannot be opened is reported on stderr and skipped.
func NewService(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	if err := s.Apply(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "logx:", err)
	}
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply swaps level and sinks. The log file stays open when its path is
// unchanged. On a file error the console sink is still installed and the
// error returned.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sinks []io.Writer
		err   error
	)
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		if ferr := s.openFileLocked(path); ferr != nil {
			err = ferr
		} else {
			sinks = append(sinks, zerolog.SyncWriter(s.file))
		}
	} else {
		s.closeFileLocked()
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(ParseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
	return err
}

func (s *Service) openFileLocked(path string) error {
	if s.file != nil && s.filePath == path {
		return nil
	}
	s.closeFileLocked()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("log dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("log file %q: %w", path, err)
	}
	s.file, s.filePath = f, path
	return nil
}

func (s *Service) closeFileLocked() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file, s.filePath = nil, ""
}

// Close releases the log file and falls back to stdout so late entries are
// not lost. It is safe to call more than once.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.filePath = nil, ""
	zl := s.current().Output(consoleWriter(os.Stdout))
	s.root.Store(&zl)
	return err
}
