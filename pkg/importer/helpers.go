package importer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// downloadFile downloads url to dest with retries and timeout.
func downloadFile(ctx context.Context, url, dest string) error {
	client := &http.Client{Timeout: 10 * time.Minute}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			continue
		}

		f, err := os.Create(dest)
		if err != nil {
			resp.Body.Close()
			return fmt.Errorf("create file: %w", err)
		}

		_, copyErr := io.Copy(f, resp.Body)
		resp.Body.Close()
		closeErr := f.Close()

		if copyErr != nil {
			lastErr = copyErr
			continue
		}
		if closeErr != nil {
			return closeErr
		}
		return nil
	}
	return fmt.Errorf("download %s failed after 3 attempts: %w", url, lastErr)
}

// unzipFile extracts a ZIP archive to destDir and returns the list of extracted file paths.
func unzipFile(src, destDir string) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var paths []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		destPath := filepath.Join(destDir, filepath.Base(f.Name))
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}

		out, err := os.Create(destPath)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("create %s: %w", destPath, err)
		}

		if _, err := io.Copy(out, rc); err != nil {
			rc.Close()
			out.Close()
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		rc.Close()
		out.Close()
		paths = append(paths, destPath)
	}
	return paths, nil
}

// ensureDir creates a directory if it doesn't exist.
func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// localPath returns the filesystem path of a file:// URL or a plain path;
// ok is false for remote URLs.
func localPath(source string) (string, bool) {
	u, err := url.Parse(source)
	if err != nil {
		return source, true
	}
	switch u.Scheme {
	case "http", "https":
		return "", false
	case "file":
		return u.Path, true
	}
	return source, true
}

// fetch makes source available on disk and returns its path. Remote files
// land in a scratch directory under workDir; cleanup removes it.
func fetch(ctx context.Context, source, workDir string) (string, func(), error) {
	if p, ok := localPath(source); ok {
		if _, err := os.Stat(p); err != nil {
			return "", nil, fmt.Errorf("source file: %w", err)
		}
		return p, func() {}, nil
	}

	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := ensureDir(workDir); err != nil {
		return "", nil, err
	}
	dlDir, err := os.MkdirTemp(workDir, "_download")
	if err != nil {
		return "", nil, fmt.Errorf("create download dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dlDir) }

	name := path.Base(source)
	if u, err := url.Parse(source); err == nil {
		name = path.Base(u.Path)
	}
	dest := filepath.Join(dlDir, name)
	if err := downloadFile(ctx, source, dest); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("download: %w", err)
	}
	return dest, cleanup, nil
}

// fetchFeed is fetch plus extraction of entry when the file is a ZIP.
func fetchFeed(ctx context.Context, source, workDir, entry string) (string, func(), error) {
	p, cleanup, err := fetch(ctx, source, workDir)
	if err != nil {
		return "", nil, err
	}
	if !strings.EqualFold(filepath.Ext(p), ".zip") {
		return p, cleanup, nil
	}

	dir, err := os.MkdirTemp(workDir, "_unzip")
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("create unzip dir: %w", err)
	}
	done := func() {
		os.RemoveAll(dir)
		cleanup()
	}
	files, err := unzipFile(p, dir)
	if err != nil {
		done()
		return "", nil, fmt.Errorf("unzip: %w", err)
	}
	for _, f := range files {
		if filepath.Base(f) == entry {
			return f, done, nil
		}
	}
	done()
	return "", nil, fmt.Errorf("%s not found in %s", entry, filepath.Base(p))
}

// writeReport writes a run report as YAML to dir/import-report.yaml.
func writeReport(dir string, r *Report) error {
	if err := ensureDir(dir); err != nil {
		return err
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "import-report.yaml"), data, 0o644)
}
