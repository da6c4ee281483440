package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator is an io.Writer over a log file that rolls the file over when
// it grows past the size limit or the calendar day changes, and prunes
// rotated siblings by count and age.
type FileRotator struct {
	path       string
	maxBytes   int64
	maxAge     time.Duration
	maxBackups int
	compress   bool

	mu      sync.Mutex
	f       *os.File
	written int64
	day     int // yyyymmdd of the current file's first write
}

// NewFileRotator opens (or creates) the log file at cfg.FilePath and returns
// a writer rotating per cfg's policy.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{
		path:       cfg.FilePath,
		maxBytes:   cfg.MaxSize * 1024 * 1024,
		maxAge:     time.Duration(cfg.MaxAge) * 24 * time.Hour,
		maxBackups: cfg.MaxBackups,
		compress:   cfg.Compress,
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.f = f
	r.written = info.Size()
	r.day = dayStamp(time.Now())
	return nil
}

// Write appends p, rolling the file over first when the write would push it
// past the size limit or the day has changed since the file was opened.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.written+int64(len(p)) > r.maxBytes || r.day != dayStamp(time.Now()) {
		if err := r.roll(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.f.Write(p)
	r.written += int64(n)
	return n, err
}

// roll renames the current file to a timestamped sibling and starts a fresh
// one. Compression and pruning run in the background; the logging hot path
// never waits on them.
func (r *FileRotator) roll() error {
	if r.f != nil {
		if err := r.f.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		r.f = nil
	}

	rotated := r.rotatedName(time.Now())
	if err := os.Rename(r.path, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if r.compress {
		go gzipAndRemove(rotated)
	}
	go r.prune()

	return r.open()
}

// rotatedName builds the timestamped sibling path, keeping the extension
// last so pruning can glob for it.
func (r *FileRotator) rotatedName(now time.Time) string {
	dir := filepath.Dir(r.path)
	base := filepath.Base(r.path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, now.Format("20060102-150405"), ext))
}

// prune deletes rotated files beyond the backup count and past the age
// limit. The live file never matches the glob, so it is never deleted.
func (r *FileRotator) prune() {
	base := filepath.Base(r.path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(r.path), stem+"-*"+ext+"*"))
	if err != nil {
		return
	}

	type rotated struct {
		path string
		mod  time.Time
	}
	old := make([]rotated, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		old = append(old, rotated{path: m, mod: info.ModTime()})
	}
	sort.Slice(old, func(i, j int) bool { return old[i].mod.Before(old[j].mod) })

	if r.maxBackups > 0 {
		for len(old) > r.maxBackups {
			os.Remove(old[0].path)
			old = old[1:]
		}
	}
	if r.maxAge > 0 {
		cutoff := time.Now().Add(-r.maxAge)
		for _, f := range old {
			if f.mod.Before(cutoff) {
				os.Remove(f.path)
			}
		}
	}
}

// Close closes the underlying file; a later Write reopens it.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// Sync flushes the underlying file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}
	return r.f.Sync()
}

// gzipAndRemove compresses path in place, removing the original only after
// the archive is fully written. Failures leave the uncompressed file behind.
func gzipAndRemove(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(path)
	gz.ModTime = time.Now()
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

func dayStamp(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
