// Package changelog reads the pacman transaction log to find out which
// packages actually changed during an upgrade run.
package changelog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// DefaultPath is where pacman appends its transaction log.
const DefaultPath = "/var/log/pacman.log"

// ErrUnknownMarker is returned by Since when no marker was captured.
var ErrUnknownMarker = errors.New("log marker unknown")

// verbs are tried in order; the first one found on a line wins.
var verbs = []string{"upgraded", "installed", "downgraded"}

// Marker is a byte offset into the log, captured before an upgrade starts.
type Marker struct {
	Offset int64
	Known  bool
}

// Unknown is the marker of a log that could not be read.
var Unknown = Marker{}

// At returns a known marker at offset.
func At(offset int64) Marker {
	return Marker{Offset: offset, Known: true}
}

func (m Marker) String() string {
	if !m.Known {
		return "unknown"
	}
	return fmt.Sprintf("%d", m.Offset)
}

// ChangesSince returns the names of packages installed, upgraded or
// downgraded in data after offset, deduplicated in order of first
// appearance. Lines that do not describe a package change are ignored.
func ChangesSince(offset int64, data []byte) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(data)) {
		return nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(decode(data[offset:]), "\n") {
		name, ok := parseLine(line)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// parseLine extracts the package name from a line such as
//
//	[2024-05-01T10:00:00+0200] [ALPM] upgraded linux (6.8.8-1 -> 6.8.9-1)
func parseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	for _, verb := range verbs {
		token := "] [ALPM] " + verb + " "
		_, rest, found := strings.Cut(line, token)
		if !found {
			continue
		}
		name, _, _ := strings.Cut(rest, " ")
		name = strings.TrimSpace(name)
		return name, name != ""
	}
	return "", false
}

func decode(b []byte) string {
	return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
}

// File is a change log on disk.
type File struct {
	path   string
	logger *zap.Logger
}

// NewFile returns a reader for the log at path. An empty path means
// DefaultPath.
func NewFile(path string, logger *zap.Logger) *File {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{path: path, logger: logger}
}

// Path returns the location of the log.
func (f *File) Path() string {
	return f.path
}

// Mark returns the current end of the log. A log that cannot be read yields
// Unknown.
func (f *File) Mark() Marker {
	fh, err := os.Open(f.path)
	if err != nil {
		f.logger.Debug("change log unreadable", zap.String("path", f.path), zap.Error(err))
		return Unknown
	}
	defer fh.Close()

	end, err := fh.Seek(0, io.SeekEnd)
	if err != nil {
		f.logger.Debug("change log seek", zap.String("path", f.path), zap.Error(err))
		return Unknown
	}
	return At(end)
}

// Since reads everything appended after m and returns the changed packages.
// A log that was truncated or rotated below m yields no packages.
func (f *File) Since(m Marker) ([]string, error) {
	names, _, err := f.Read(m)
	return names, err
}

// Read is Since that also returns the marker it read up to, so a caller can
// follow the log from there without missing lines appended in between.
func (f *File) Read(m Marker) ([]string, Marker, error) {
	if !m.Known {
		return nil, Unknown, ErrUnknownMarker
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return nil, Unknown, fmt.Errorf("open change log: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, Unknown, fmt.Errorf("stat change log: %w", err)
	}
	if m.Offset >= info.Size() {
		return nil, At(info.Size()), nil
	}

	if _, err := fh.Seek(m.Offset, io.SeekStart); err != nil {
		return nil, Unknown, fmt.Errorf("seek change log to %d: %w", m.Offset, err)
	}
	tail, err := io.ReadAll(fh)
	if err != nil {
		return nil, Unknown, fmt.Errorf("read change log: %w", err)
	}
	return ChangesSince(0, tail), At(m.Offset + int64(len(tail))), nil
}
