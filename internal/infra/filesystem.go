package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

const (
	// DefaultIfwDir is where system_server reads Intent Firewall rules.
	DefaultIfwDir = "/data/system/ifw"
	// SecureIfwDir is used instead when the encrypted file system is enabled.
	SecureIfwDir = "/data/secure/system/ifw"

	ruleExtension = ".xml"
	lockFileName  = ".compctl.lock"
	efsProperty   = "persist.security.efs.enabled"
)

// IfwRuleStorage implements domain.RuleStorage on the local file system.
// Writes are atomic (temp file + rename) and serialized per package in
// process and across processes with an flock on the rule directory.
type IfwRuleStorage struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIfwRuleStorage creates storage rooted at the rule directory for this
// device. A non-empty override skips detection.
func NewIfwRuleStorage(ctx context.Context, executor domain.CommandExecutor, override string, logger *zap.Logger) *IfwRuleStorage {
	dir := override
	if dir == "" {
		dir = DetectIfwDir(ctx, executor, logger)
	}
	return NewIfwRuleStorageWithDir(dir, logger)
}

// NewIfwRuleStorageWithDir creates storage at a specific directory (for testing).
func NewIfwRuleStorageWithDir(dir string, logger *zap.Logger) *IfwRuleStorage {
	return &IfwRuleStorage{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// DetectIfwDir picks the secure data directory when the encrypted file
// system property is set, and the regular system directory otherwise.
func DetectIfwDir(ctx context.Context, executor domain.CommandExecutor, logger *zap.Logger) string {
	result, err := executor.Exec(ctx, "getprop "+efsProperty)
	if err != nil {
		logger.Warn("cannot read efs property, using default ifw dir", zap.Error(err))
		return DefaultIfwDir
	}
	if strings.TrimSpace(result.Output()) == "1" {
		return SecureIfwDir
	}
	return DefaultIfwDir
}

// Dir returns the rule directory in use.
func (s *IfwRuleStorage) Dir() string {
	return s.dir
}

func (s *IfwRuleStorage) pathFor(packageName string) string {
	return filepath.Join(s.dir, packageName+ruleExtension)
}

// Read returns the raw rule file for packageName.
func (s *IfwRuleStorage) Read(ctx context.Context, packageName string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathFor(packageName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return data, nil
}

// Update runs fn with the current content under the package lock and stores
// its result. A nil result deletes the file.
func (s *IfwRuleStorage) Update(ctx context.Context, packageName string, fn func(current []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pkgLock := s.packageLock(packageName)
	pkgLock.Lock()
	defer pkgLock.Unlock()

	unlock, err := s.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.Read(ctx, packageName)
	if err != nil && !errors.Is(err, domain.ErrRuleNotFound) {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if next == nil {
		return s.remove(packageName)
	}
	return s.atomicWrite(packageName, next)
}

// Delete removes the rule file if present.
func (s *IfwRuleStorage) Delete(ctx context.Context, packageName string) error {
	return s.Update(ctx, packageName, func([]byte) ([]byte, error) {
		return nil, nil
	})
}

// List returns package names that have a rule file, sorted.
func (s *IfwRuleStorage) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list rule dir: %w", err)
	}

	var packages []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ruleExtension) {
			continue
		}
		packages = append(packages, strings.TrimSuffix(name, ruleExtension))
	}
	sort.Strings(packages)
	return packages, nil
}

// CheckWritable takes the directory lock and checks write access. Rule
// files are written by this process directly, not through the su shell.
func (s *IfwRuleStorage) CheckWritable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := s.lockDir()
	if err != nil {
		return err
	}
	defer unlock()
	if err := unix.Access(s.dir, unix.W_OK); err != nil {
		return fmt.Errorf("rule dir %s is not writable: %w", s.dir, err)
	}
	return nil
}

func (s *IfwRuleStorage) packageLock(packageName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[packageName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[packageName] = l
	}
	return l
}

// lockDir takes an exclusive flock shared with other compctl processes.
func (s *IfwRuleStorage) lockDir() (func(), error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create rule dir: %w", err)
	}
	lockFile, err := os.OpenFile(filepath.Join(s.dir, lockFileName), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		lockFile.Close()
	}, nil
}

// atomicWrite writes the rule file atomically (write + rename).
func (s *IfwRuleStorage) atomicWrite(packageName string, data []byte) error {
	dest := s.pathFor(packageName)

	// Temp name must not end in .xml or system_server may pick it up.
	tmpPath := fmt.Sprintf("%s/.%s.%d.tmp", s.dir, packageName, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write rule file: %w", err)
	}
	// WriteFile honours umask; the rule file must be world readable.
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return fmt.Errorf("failed to replace rule file: %w", err)
	}

	s.logger.Info("saved ifw rules", zap.String("path", dest))
	return nil
}

func (s *IfwRuleStorage) remove(packageName string) error {
	path := s.pathFor(packageName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete rule file: %w", err)
	}
	s.logger.Debug("cleared ifw rules", zap.String("path", path))
	return nil
}

// Ensure IfwRuleStorage implements domain.RuleStorage.
var _ domain.RuleStorage = (*IfwRuleStorage)(nil)
