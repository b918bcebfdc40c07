// Package settings persists last-used paths and option defaults between
// runs. The engine only ever sees the Store interface; the INI file behind
// it is an implementation detail of the desktop app heritage.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"gopkg.in/ini.v1"
)

// Keys understood by every frontend. Unknown keys are preserved on save so
// newer builds can round-trip older files.
const (
	KeyLastSource      = "last_source"
	KeyLastDest        = "last_dest"
	KeyMode            = "mode"
	KeyIncludeSubdirs  = "include_subdirs"
	KeyMirror          = "mirror"
	KeyRetries         = "retries"
	KeyRetryWait       = "retry_wait_seconds"
	KeyThreads         = "threads"
	KeyDuplicateAction = "duplicate_action"
	KeyNotifications   = "notifications"
	KeyExecutable      = "executable"
)

// Store is the get/set surface the engine depends on. It never embeds
// persistence logic of its own; Save flushes whatever the implementation
// uses underneath.
type Store interface {
	Get(key string) string
	GetBool(key string, fallback bool) bool
	GetInt(key string, fallback int) int
	Set(key, value string)
	SetBool(key string, value bool)
	SetInt(key string, value int)
	Save() error
}

const sectionName = "transfer"

// FileStore keeps settings in an INI file. Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	file *ini.File
}

// NewFileStore loads path, starting from an empty file when it does not
// exist yet.
func NewFileStore(path string) (*FileStore, error) {
	file, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("loading settings %s: %w", path, err)
	}
	return &FileStore{path: path, file: file}, nil
}

// DefaultPath returns the per-user settings location: the platform config
// directory plus an app folder.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	folder := "reeltransfer"
	if runtime.GOOS == "windows" {
		folder = "ReelTransfer"
	}
	return filepath.Join(base, folder, "settings.conf"), nil
}

func (s *FileStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Section(sectionName).Key(key).String()
}

func (s *FileStore) GetBool(key string, fallback bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.file.Section(sectionName).Key(key)
	if k.String() == "" {
		return fallback
	}
	return k.MustBool(fallback)
}

func (s *FileStore) GetInt(key string, fallback int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.file.Section(sectionName).Key(key)
	if k.String() == "" {
		return fallback
	}
	return k.MustInt(fallback)
}

func (s *FileStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Section(sectionName).Key(key).SetValue(value)
}

func (s *FileStore) SetBool(key string, value bool) {
	s.Set(key, strconv.FormatBool(value))
}

func (s *FileStore) SetInt(key string, value int) {
	s.Set(key, strconv.Itoa(value))
}

// Save writes the file, creating the parent directory on first use.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return s.file.SaveTo(s.path)
}

// RememberPaths records the paths of a completed transfer as the next run's
// defaults.
func RememberPaths(s Store, source, dest string) {
	s.Set(KeyLastSource, source)
	s.Set(KeyLastDest, dest)
}
