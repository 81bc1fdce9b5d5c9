package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RotationPolicy decides when a stream file is retired.
type RotationPolicy struct {
	// MaxAge is the age of the oldest record after which the file rotates.
	// Default: 7 days
	MaxAge time.Duration

	// MaxSize is the file size in bytes after which the file rotates.
	// Default: 100MB
	MaxSize int64
}

// DefaultRotationPolicy returns the 7 day / 100MB policy.
func DefaultRotationPolicy() RotationPolicy {
	return RotationPolicy{
		MaxAge:  7 * 24 * time.Hour,
		MaxSize: 100 * 1024 * 1024,
	}
}

func (p RotationPolicy) withDefaults() RotationPolicy {
	d := DefaultRotationPolicy()
	if p.MaxAge <= 0 {
		p.MaxAge = d.MaxAge
	}
	if p.MaxSize <= 0 {
		p.MaxSize = d.MaxSize
	}
	return p
}

// RotationReason explains why a stream needs rotating. Empty means it does not.
type RotationReason string

const (
	RotateNone RotationReason = ""
	RotateAge  RotationReason = "age"
	RotateSize RotationReason = "size"
)

// NeedsRotation reports whether the stream's file exceeds the policy. The
// file's age is measured from its first record's timestamp, falling back to
// the modification time when that line is unreadable. A missing file never
// needs rotation.
func (s *Sink) NeedsRotation(name Stream, policy RotationPolicy, now time.Time) (RotationReason, error) {
	st, ok := s.streams[name]
	if !ok {
		return RotateNone, fmt.Errorf("%w: %q", ErrUnknownStream, name)
	}
	policy = policy.withDefaults()

	info, err := os.Stat(st.path)
	if errors.Is(err, os.ErrNotExist) {
		return RotateNone, nil
	}
	if err != nil {
		return RotateNone, err
	}
	if info.Size() == 0 {
		return RotateNone, nil
	}
	if info.Size() > policy.MaxSize {
		return RotateSize, nil
	}

	born := firstRecordTime(st.path)
	if born.IsZero() {
		born = info.ModTime()
	}
	if now.Sub(born) > policy.MaxAge {
		return RotateAge, nil
	}
	return RotateNone, nil
}

func firstRecordTime(path string) time.Time {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return time.Time{}
	}
	var head struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if json.Unmarshal(line, &head) != nil {
		return time.Time{}
	}
	return head.Timestamp
}

// Rotate renames the stream's file to <name>-YYYYMMDD.log (adding -N when
// that name is taken) and returns the new path. The next write creates a
// fresh file. Rotating a stream with no file is a no-op returning "".
func (s *Sink) Rotate(name Stream, now time.Time) (string, error) {
	st, ok := s.streams[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStream, name)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, err := os.Stat(st.path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	if err := st.closeLocked(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRotate, name, err)
	}

	target, err := rotatedPath(st.path, now)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRotate, name, err)
	}
	if err := os.Rename(st.path, target); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRotate, name, err)
	}
	return target, nil
}

func rotatedPath(path string, now time.Time) (string, error) {
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	base := strings.TrimSuffix(file, ext)
	stamp := now.UTC().Format("20060102")

	candidate := filepath.Join(dir, fmt.Sprintf("%s-%s%s", base, stamp, ext))
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", base, stamp, n, ext))
	}
}
