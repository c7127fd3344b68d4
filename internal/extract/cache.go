package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"ttcal/internal/config"
	appLog "ttcal/internal/log"
)

const defaultTimeout = 2 * time.Minute

// ErrNoCommand is returned by Refresh when no extraction command is
// configured.
var ErrNoCommand = errors.New("no extraction command configured")

// Options describes where the extraction output lives and how to
// regenerate it.
type Options struct {
	// EventsPath receives the command's stdout (the raw events JSON).
	EventsPath string
	// ErrorsPath receives the command's stderr.
	ErrorsPath string
	// Command is the argv of the extraction tool.
	Command []string
	// StaleAfter is the events file age that triggers regeneration.
	StaleAfter time.Duration
	// Timeout bounds a single extraction run. Zero means defaultTimeout.
	Timeout time.Duration
}

// Cache keeps the raw events file produced by the external PDF extraction
// tool fresh. Regeneration is serialized; concurrent callers wait for the
// run in progress.
type Cache struct {
	opts Options
	mu   sync.Mutex
	now  func() time.Time
}

// NewCache creates a Cache. Relative paths are resolved against the
// working directory.
func NewCache(opts Options) *Cache {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Cache{opts: opts, now: time.Now}
}

// Ensure regenerates the events file when it is missing, at least
// StaleAfter old, or when the errors file of the previous run exists and
// is empty. A failed regeneration is logged and the existing events file
// is kept; it is an error only when no events file exists at all.
func (c *Cache) Ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	refresh, reason := c.needsRefresh()
	if !refresh {
		return nil
	}
	if len(c.opts.Command) == 0 {
		appLog.Debug("extraction needed but no command configured", "reason", reason, "events", c.opts.EventsPath)
		return nil
	}

	appLog.Info("regenerating events", "reason", reason, "events", c.opts.EventsPath)
	err := c.refreshLocked(ctx)
	if err == nil {
		return nil
	}
	if _, statErr := os.Stat(c.opts.EventsPath); statErr == nil {
		appLog.Error("extraction failed, using existing events file", err, "events", c.opts.EventsPath)
		return nil
	}
	return err
}

// Refresh runs the extraction command unconditionally.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// Open returns the current events file for reading.
func (c *Cache) Open() (io.ReadCloser, error) {
	f, err := os.Open(c.opts.EventsPath)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	return f, nil
}

// needsRefresh reports whether the events file must be regenerated and why.
func (c *Cache) needsRefresh() (bool, string) {
	info, err := os.Stat(c.opts.EventsPath)
	if err != nil {
		return true, "missing"
	}
	if c.now().Sub(info.ModTime()) >= c.opts.StaleAfter {
		return true, "stale"
	}
	// An empty errors file means the previous run finished cleanly; the
	// extraction is re-run in that case as well.
	if errInfo, err := os.Stat(c.opts.ErrorsPath); err == nil && errInfo.Size() == 0 {
		return true, "previous run clean"
	}
	return false, ""
}

func (c *Cache) refreshLocked(ctx context.Context) error {
	if len(c.opts.Command) == 0 {
		return ErrNoCommand
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.opts.Command[0], c.opts.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := c.now()
	runErr := cmd.Run()

	if runErr == nil && !json.Valid(stdout.Bytes()) {
		runErr = errors.New("extraction output is not valid JSON")
	}

	errText := stderr.String()
	if runErr != nil && strings.TrimSpace(errText) == "" {
		errText = runErr.Error() + "\n"
	}
	if err := writeErrors(c.opts.ErrorsPath, errText); err != nil {
		appLog.Error("failed to record extraction errors", err, "path", c.opts.ErrorsPath)
	}

	if runErr != nil {
		return fmt.Errorf("run extraction %q: %w", c.opts.Command[0], runErr)
	}

	if err := config.WriteFileAtomic(c.opts.EventsPath, stdout.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write events: %w", err)
	}

	appLog.Info("events regenerated",
		"events", c.opts.EventsPath,
		"bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
		"took", c.now().Sub(start),
	)
	return nil
}

func writeErrors(path, text string) error {
	if path == "" {
		return nil
	}
	err := os.WriteFile(path, []byte(text), 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("errors file directory missing: %w", err)
	}
	return err
}
