package importer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/hazyhaar/geotree/pkg/geo"
)

// feed reads a GeoNames-style dump: one record per line, tab separated,
// no quoting, '#' comment lines.
type feed struct {
	name string
	f    *os.File
	sc   *bufio.Scanner
	line int
}

// openFeed opens path, transcoding from encoding when it is not UTF-8.
func openFeed(path, encoding string) (*feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}

	var reader io.Reader = f
	if encoding != "" && !isUTF8(encoding) {
		e, err := htmlindex.Get(encoding)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
		}
		reader = transform.NewReader(f, e.NewDecoder())
	}

	sc := bufio.NewScanner(reader)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &feed{name: filepath.Base(path), f: f, sc: sc}, nil
}

func isUTF8(enc string) bool {
	switch strings.ToLower(strings.ReplaceAll(enc, "-", "")) {
	case "utf8", "":
		return true
	}
	return false
}

// next returns the fields of the next data line, or io.EOF.
func (r *feed) next() ([]string, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimRight(r.sc.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		return strings.Split(text, "\t"), nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("%s:%d: %w", r.name, r.line, err)
	}
	return nil, io.EOF
}

func (r *feed) Close() error { return r.f.Close() }

// wantFields checks the column count of a GeoNames row.
func wantFields(source string, line int, fields []string, n int) error {
	if len(fields) < n {
		return &geo.RecordError{Source: source, Line: line, Err: fmt.Errorf("want %d fields, got %d", n, len(fields))}
	}
	return nil
}

// parseID parses a numeric GeoNames id; empty means 0.
func parseID(source string, line int, field, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &geo.RecordError{Source: source, Line: line, Err: fmt.Errorf("%s: %w", field, err)}
	}
	return v, nil
}

func errBadCode(code string) error {
	return fmt.Errorf("malformed code %q", code)
}
