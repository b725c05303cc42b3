package report

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/cloudsearch/internal/fsutil"
	"github.com/banshee-data/cloudsearch/internal/monitoring"
)

// Artefact file names written by WriteAll.
const (
	JSONFile = "report.json"
	PNGFile  = "report.png"
	HTMLFile = "report.html"
)

// WriteAll writes the JSON, PNG and HTML renderings of b into dir and
// returns the paths written. Charts are skipped when no run was timed.
func WriteAll(fsys fsutil.FileSystem, dir string, b *Benchmark) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{JSONFile, func(w io.Writer) error { return WriteJSON(w, b) }},
		{PNGFile, func(w io.Writer) error { return WritePNG(w, b, 10*vg.Inch, 5*vg.Inch) }},
		{HTMLFile, func(w io.Writer) error { return WriteHTML(w, b) }},
	}

	var written []string
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		f, err := fsys.Create(path)
		if err != nil {
			return written, err
		}
		err = wr.write(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if errors.Is(err, ErrNoData) {
			monitoring.Logf("[report] skipping %s: no run was timed", wr.name)
			_ = fsys.Remove(path)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
