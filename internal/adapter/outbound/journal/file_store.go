// Package journal provides the file-backed ledger journal: JSON Lines, one
// file per UTC calendar day, flushed appends, and an in-memory cache of
// recent entries. Journal files are never rewritten or deleted; tampering
// is detected by chain verification, not prevented here.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/audit"
)

// journalFilePattern matches journal filenames: audit-YYYY-MM-DD.jsonl
var journalFilePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})\.jsonl$`)

// parseJournalFilename extracts the date component from a journal filename.
func parseJournalFilename(name string) (string, bool) {
	matches := journalFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return "", false
	}
	return matches[1], true
}

// JournalConfig holds configuration for the file-based journal.
type JournalConfig struct {
	// Dir is the directory where journal files are stored.
	Dir string
	// CacheSize is the number of recent entries kept in memory (default 1000).
	CacheSize int
}

// FileJournal implements audit.Journal with daily files and a ring cache.
type FileJournal struct {
	dir         string
	currentFile *os.File
	currentDate string
	cache       *entryCache
	mu          sync.Mutex
	logger      *slog.Logger
	closed      bool
}

// NewFileJournal creates the journal directory if needed, opens today's
// file, and populates the cache from the most recent non-empty day file.
func NewFileJournal(cfg JournalConfig, logger *slog.Logger) (*FileJournal, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	j := &FileJournal{
		dir:    cfg.Dir,
		cache:  newEntryCache(cfg.CacheSize),
		logger: logger,
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := j.openCurrentFile(today); err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	j.populateCache()

	return j, nil
}

// Append writes one sealed entry as a JSON line to the day file matching
// its timestamp and syncs before returning. Crossing a day boundary rolls
// to a new file; the hash chain continues across files.
func (j *FileJournal) Append(ctx context.Context, e audit.Entry) error {
	ts, err := time.Parse(audit.TimestampLayout, e.Timestamp)
	if err != nil {
		return fmt.Errorf("parse entry timestamp: %w", err)
	}
	dateStr := ts.UTC().Format("2006-01-02")

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("journal is closed")
	}

	if dateStr != j.currentDate {
		if err := j.rotateDateLocked(dateStr); err != nil {
			return fmt.Errorf("date rotation: %w", err)
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	line := append(data, '\n')
	if _, err := j.currentFile.Write(line); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if err := j.currentFile.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}

	j.cache.Add(e)

	return nil
}

// ReadDay returns the entries recorded on the given UTC date in insertion
// order. A day with no journal file yields an empty slice.
func (j *FileJournal) ReadDay(ctx context.Context, date time.Time) ([]audit.Entry, error) {
	dateStr := date.UTC().Format("2006-01-02")
	path := filepath.Join(j.dir, fmt.Sprintf("audit-%s.jsonl", dateStr))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []audit.Entry{}, nil
		}
		return nil, fmt.Errorf("open journal file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := scanEntries(f, j.logger, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LastEntry returns the newest entry across all day files, scanning the
// most recent non-empty file. ok is false when the journal is empty.
func (j *FileJournal) LastEntry(ctx context.Context) (audit.Entry, bool, error) {
	name := j.findMostRecentFile()
	if name == "" {
		return audit.Entry{}, false, nil
	}

	f, err := os.Open(filepath.Join(j.dir, name))
	if err != nil {
		return audit.Entry{}, false, fmt.Errorf("open journal file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := scanEntries(f, j.logger, name)
	if err != nil {
		return audit.Entry{}, false, err
	}
	if len(entries) == 0 {
		return audit.Entry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

// Recent returns the last n entries from the cache, newest first.
func (j *FileJournal) Recent(n int) []audit.Entry {
	return j.cache.Recent(n)
}

// Close syncs and closes the current day file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if j.currentFile != nil {
		_ = j.currentFile.Sync()
		err := j.currentFile.Close()
		j.currentFile = nil
		return err
	}
	return nil
}

// openCurrentFile opens or creates the journal file for the given date.
func (j *FileJournal) openCurrentFile(dateStr string) error {
	path := filepath.Join(j.dir, fmt.Sprintf("audit-%s.jsonl", dateStr))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open file %s: %w", filepath.Base(path), err)
	}

	j.currentFile = f
	j.currentDate = dateStr
	return nil
}

// rotateDateLocked closes the current file and opens the file for the given
// date. Must be called with j.mu held.
func (j *FileJournal) rotateDateLocked(dateStr string) error {
	if j.currentFile != nil {
		_ = j.currentFile.Sync()
		_ = j.currentFile.Close()
		j.currentFile = nil
	}
	return j.openCurrentFile(dateStr)
}

// populateCache reads the most recent day file and fills the cache.
func (j *FileJournal) populateCache() {
	name := j.findMostRecentFile()
	if name == "" {
		return
	}

	f, err := os.Open(filepath.Join(j.dir, name))
	if err != nil {
		j.logger.Error("journal cache: failed to open file", "file", name, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	entries, err := scanEntries(f, j.logger, name)
	if err != nil {
		j.logger.Error("journal cache: error reading file", "file", name, "error", err)
		return
	}

	start := 0
	if len(entries) > j.cache.size {
		start = len(entries) - j.cache.size
	}
	for _, e := range entries[start:] {
		j.cache.Add(e)
	}
}

// findMostRecentFile returns the filename of the most recent non-empty day
// file, or an empty string if none exist.
func (j *FileJournal) findMostRecentFile() string {
	dirEntries, err := os.ReadDir(j.dir)
	if err != nil {
		return ""
	}

	var names []string
	for _, de := range dirEntries {
		if _, ok := parseJournalFilename(de.Name()); !ok {
			continue
		}
		info, err := de.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		names = append(names, de.Name())
	}

	if len(names) == 0 {
		return ""
	}

	// Date is the only variable component, so lexicographic order is
	// chronological order.
	sort.Strings(names)
	return names[len(names)-1]
}

// scanEntries parses a journal file line by line, skipping blank and
// malformed lines with a warning.
func scanEntries(f *os.File, logger *slog.Logger, name string) ([]audit.Entry, error) {
	var entries []audit.Entry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			logger.Warn("journal: skipping malformed line", "file", name, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal file %s: %w", name, err)
	}

	return entries, nil
}

// Compile-time interface verification.
var _ audit.Journal = (*FileJournal)(nil)

// entryCache is a ring buffer of recent entries for fast queries.
type entryCache struct {
	entries []audit.Entry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// newEntryCache creates a cache with the given capacity.
func newEntryCache(size int) *entryCache {
	if size <= 0 {
		size = 1000
	}
	return &entryCache{
		entries: make([]audit.Entry, size),
		size:    size,
	}
}

// Add appends an entry, overwriting the oldest when full.
func (c *entryCache) Add(e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.head] = e
	c.head = (c.head + 1) % c.size
	if c.count < c.size {
		c.count++
	}
}

// Recent returns the last n entries, newest first. If n exceeds the number
// of cached entries, all entries are returned.
func (c *entryCache) Recent(n int) []audit.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || c.count == 0 {
		return nil
	}
	if n > c.count {
		n = c.count
	}

	result := make([]audit.Entry, n)
	for i := 0; i < n; i++ {
		// head is the next write slot, so head-1 is the newest entry
		idx := (c.head - 1 - i + c.size) % c.size
		result[i] = c.entries[idx]
	}
	return result
}

// Len returns the number of cached entries.
func (c *entryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}
