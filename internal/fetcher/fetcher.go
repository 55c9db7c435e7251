// Package fetcher downloads observation tables and boundary layers over HTTP,
// FTP, or the local filesystem, and parses CSV, JSON, XLSX, and ZIP payloads.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a resource by location.
type Fetcher interface {
	// Download returns the body of the resource. The caller closes it.
	Download(ctx context.Context, location string) (io.ReadCloser, error)

	// DownloadToFile writes the resource to path and returns the bytes written.
	DownloadToFile(ctx context.Context, location string, path string) (int64, error)
}

// Router dispatches on the location scheme: http(s) to HTTP, ftp to FTP, and
// file:// or a bare path to the local filesystem.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter returns a Router backed by the given HTTP and FTP fetchers.
func NewRouter(httpFetcher, ftpFetcher Fetcher) *Router {
	return &Router{HTTP: httpFetcher, FTP: ftpFetcher}
}

// IsRemote reports whether location names an http(s) or ftp resource.
func IsRemote(location string) bool {
	switch scheme(location) {
	case "http", "https", "ftp":
		return true
	default:
		return false
	}
}

func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

func (r *Router) pick(location string) (Fetcher, error) {
	switch scheme(location) {
	case "http", "https":
		if r.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", location)
		}
		return r.HTTP, nil
	case "ftp":
		if r.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", location)
		}
		return r.FTP, nil
	case "", "file":
		return nil, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme in %q", location)
	}
}

// Download opens the resource at location.
func (r *Router) Download(ctx context.Context, location string) (io.ReadCloser, error) {
	f, err := r.pick(location)
	if err != nil {
		return nil, err
	}
	if f != nil {
		return f.Download(ctx, location)
	}
	file, err := os.Open(localPath(location))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open local file")
	}
	return file, nil
}

// DownloadToFile copies the resource at location to path.
func (r *Router) DownloadToFile(ctx context.Context, location string, path string) (int64, error) {
	f, err := r.pick(location)
	if err != nil {
		return 0, err
	}
	if f != nil {
		return f.DownloadToFile(ctx, location, path)
	}
	rc, err := r.Download(ctx, location)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	return writeFile(path, rc)
}

func localPath(location string) string {
	if scheme(location) != "file" {
		return location
	}
	u, err := url.Parse(location)
	if err != nil || u.Path == "" {
		return strings.TrimPrefix(location, "file://")
	}
	return filepath.FromSlash(u.Path)
}

func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, r)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
