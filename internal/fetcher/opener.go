package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Opener resolves a location to a reader by its scheme: http and https go
// through the HTTP fetcher, ftp through the FTP fetcher, and file URLs or
// bare paths are opened from disk.
type Opener struct {
	http Fetcher
	ftp  Fetcher
}

// NewOpener creates an Opener backed by the given fetchers.
func NewOpener(httpFetcher, ftpFetcher Fetcher) *Opener {
	return &Opener{http: httpFetcher, ftp: ftpFetcher}
}

// Open returns a reader for location. The caller closes it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths, including Windows drive letters.
		return openFile(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if o.http == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", location)
		}
		return o.http.Download(ctx, location)
	case "ftp":
		if o.ftp == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", location)
		}
		return o.ftp.Download(ctx, location)
	case "file":
		return openFile(u.Path)
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// ReadAll opens location and reads it fully.
func (o *Opener) ReadAll(ctx context.Context, location string) ([]byte, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", location)
	}
	return data, nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}
