package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// inputColumns are the required input CSV columns, in any order.
var inputColumns = []string{"username", "profile_name", "url", "followers"}

// outputColumns is the result CSV header, in order.
var outputColumns = []string{
	"username", "profile_name", "url", "followers",
	"youtube_url", "youtube_score", "twitch_url", "twitch_score",
}

// Load reads input records from CSV. Malformed rows (missing username,
// non-numeric followers, wrong field count) are skipped with a warning
// and counted; they never abort the load. Duplicate usernames keep the
// first occurrence, since the username is the resume identity key.
func Load(r io.Reader, logger *slog.Logger) (records []Record, skipped int, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // row width checked per-row so one bad row stays one bad row
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range inputColumns {
		if _, ok := col[want]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", want)
		}
	}

	seen := make(map[string]bool)
	line := 1
	for {
		line++
		row, rerr := cr.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			// csv-level row errors (bad quoting etc.) are row-scoped.
			logger.Warn("skipping malformed row", "line", line, "error", rerr)
			skipped++
			continue
		}

		rec, perr := parseRow(row, col)
		if perr != nil {
			logger.Warn("skipping malformed row", "line", line, "error", perr)
			skipped++
			continue
		}
		if seen[rec.Username] {
			logger.Warn("skipping duplicate username", "line", line, "username", rec.Username)
			skipped++
			continue
		}
		seen[rec.Username] = true
		records = append(records, rec)
	}

	return records, skipped, nil
}

// LoadFile is Load over a file path.
func LoadFile(path string, logger *slog.Logger) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close() //nolint:errcheck // read-only
	return Load(f, logger)
}

func parseRow(row []string, col map[string]int) (Record, error) {
	field := func(name string) (string, error) {
		i := col[name]
		if i >= len(row) {
			return "", fmt.Errorf("%w: row too short for %q", ErrMalformedRow, name)
		}
		return strings.TrimSpace(row[i]), nil
	}

	username, err := field("username")
	if err != nil {
		return Record{}, err
	}
	if username == "" {
		return Record{}, fmt.Errorf("%w: empty username", ErrMissingKey)
	}
	profileName, err := field("profile_name")
	if err != nil {
		return Record{}, err
	}
	rawURL, err := field("url")
	if err != nil {
		return Record{}, err
	}
	followersStr, err := field("followers")
	if err != nil {
		return Record{}, err
	}

	var followers int64
	if followersStr != "" {
		followers, err = strconv.ParseInt(followersStr, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: followers %q not numeric", ErrMalformedRow, followersStr)
		}
	}

	return Record{
		Username:    username,
		ProfileName: profileName,
		URL:         rawURL,
		Followers:   followers,
	}, nil
}

// Store is the append-mode results CSV. It is the single source of truth
// for "already done": opening it scans existing rows into the resume set,
// and Append refuses keys already present. Appends are mutex-serialized
// so concurrent workers never interleave rows; they never block on
// network I/O (writes are local flushes).
type Store struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	keys map[string]bool
	path string
}

// OpenStore opens (or creates) the results CSV at path. Existing rows are
// scanned so their record keys count as completed.
func OpenStore(path string) (*Store, error) {
	keys := make(map[string]bool)

	existing, err := os.Open(path)
	switch {
	case err == nil:
		cr := csv.NewReader(existing)
		cr.FieldsPerRecord = -1
		rows, rerr := cr.ReadAll()
		cerr := existing.Close()
		if rerr != nil {
			return nil, fmt.Errorf("scan existing results: %w", rerr)
		}
		if cerr != nil {
			return nil, cerr
		}
		for i, row := range rows {
			if i == 0 || len(row) == 0 {
				continue // header
			}
			keys[row[0]] = true
		}
	case os.IsNotExist(err):
		// fresh store
	default:
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	s := &Store{f: f, w: csv.NewWriter(f), keys: keys, path: path}
	if len(keys) == 0 {
		if info, serr := f.Stat(); serr == nil && info.Size() == 0 {
			if werr := s.writeHeader(); werr != nil {
				_ = f.Close() //nolint:errcheck // already failing
				return nil, werr
			}
		}
	}
	return s, nil
}

func (s *Store) writeHeader() error {
	if err := s.w.Write(outputColumns); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Done reports whether a record key is already present in the store.
func (s *Store) Done(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}

// Count returns the number of completed record keys.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Append persists one result row immediately (no batching, so partial
// progress survives a crash). Appending a key already present is a no-op:
// re-running never duplicates a completed record.
func (s *Store) Append(res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[res.Username] {
		return nil
	}

	row := []string{
		res.Username,
		res.ProfileName,
		res.URL,
		strconv.FormatInt(res.Followers, 10),
		res.YouTube.ChannelURL,
		strconv.Itoa(res.YouTube.Score),
		res.Twitch.ChannelURL,
		strconv.Itoa(res.Twitch.Score),
	}
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	s.keys[res.Username] = true
	return nil
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close() //nolint:errcheck // already failing
		return err
	}
	return s.f.Close()
}
