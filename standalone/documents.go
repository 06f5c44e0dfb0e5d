package standalone

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoSigning is returned by SASURL; a local directory can't sign links.
var ErrNoSigning = errors.New("signed URLs not supported")

// Documents keeps blobs as files under dir/container/name and serves them
// from baseURL, or as file URLs when there is no base URL.
type Documents struct {
	dir     string
	baseURL string
}

func NewDocuments(dir, baseURL string) *Documents {
	if baseURL == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		baseURL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}
	return &Documents{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (d *Documents) path(container, name string) (string, error) {
	for _, part := range []string{container, name} {
		if part == "" || part != filepath.Base(part) || part == "." || part == ".." {
			return "", fmt.Errorf("bad blob path %q/%q", container, name)
		}
	}
	return filepath.Join(d.dir, container, name), nil
}

func (d *Documents) Upload(_ context.Context, container, name string, data []byte, _ string) error {
	p, err := d.path(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (d *Documents) Exists(_ context.Context, container, name string) (bool, error) {
	p, err := d.path(container, name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (d *Documents) SASURL(context.Context, string, string, string, time.Duration) (string, error) {
	return "", ErrNoSigning
}

func (d *Documents) BlobURL(container, name string) string {
	return d.baseURL + "/" + url.PathEscape(container) + "/" + url.PathEscape(name)
}
