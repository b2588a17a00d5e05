package driver

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LastSegment returns what follows the final '/' of p, or p itself.
func LastSegment(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// JoinPath appends name to base with exactly one '/' between them.
func JoinPath(base, name string) string {
	if strings.HasSuffix(base, "/") {
		return base + name
	}
	return base + "/" + name
}

// progressReader reports the cumulative byte count to a sink and stops the
// copy as soon as the sink declines.
type progressReader struct {
	r         io.Reader
	sink      ProgressSink
	n         int64
	cancelled bool
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.cancelled {
		return 0, ErrCancelled
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		if !p.sink.Bytes(p.n) {
			p.cancelled = true
			return n, ErrCancelled
		}
	}
	return n, err
}

// openLocalFile opens a regular file to upload and returns its size.
func openLocalFile(fs afero.Fs, localFile string) (afero.File, int64, error) {
	info, err := fs.Stat(localFile)
	if err != nil {
		return nil, 0, newError(ErrIO, err, "cannot read local file %s", localFile)
	}
	if info.IsDir() {
		return nil, 0, newError(ErrIO, nil, "local path %s is a directory", localFile)
	}
	f, err := fs.Open(localFile)
	if err != nil {
		return nil, 0, newError(ErrIO, err, "cannot open local file %s", localFile)
	}
	return f, info.Size(), nil
}

// saveLocalFile streams r into localDir/name. total is the expected size, or
// a negative value when unknown. A short copy, or an empty one unless
// allowEmpty is set, is an I/O error and the partial file is removed.
func saveLocalFile(fs afero.Fs, localDir, name string, r io.Reader, total int64, allowEmpty bool, sink ProgressSink) (err error) {
	// @todo receive mode from caller
	if err := fs.MkdirAll(localDir, 0755); err != nil {
		return newError(ErrIO, err, "failed to create directory %s", localDir)
	}

	localPath := filepath.Join(localDir, name)
	out, err := fs.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return newError(ErrIO, err, "failed to create destination file %s", localPath)
	}
	defer func() {
		_ = out.Close()
		if err != nil {
			_ = fs.Remove(localPath)
		}
	}()

	sink.Start(name, max(total, 0))
	pr := &progressReader{r: r, sink: sink}
	n, err := io.Copy(out, pr)
	switch {
	case pr.cancelled:
		return newError(ErrTransfer, ErrCancelled, "download of %s stopped", name)
	case err != nil:
		return newError(ErrIO, err, "transfer of %s interrupted after %d bytes", name, n)
	case n == 0 && !allowEmpty:
		return newError(ErrIO, nil, "transfer of %s interrupted: no bytes received", name)
	case total > 0 && n < total:
		return newError(ErrIO, nil, "transfer of %s truncated: %d of %d bytes", name, n, total)
	}
	if err = out.Close(); err != nil {
		return newError(ErrIO, err, "failed to write %s", localPath)
	}
	sink.Done()
	return nil
}
