package jobspec

import (
	"fmt"
	"path/filepath"
	"strings"

	"splitcat/internal/fsprobe"
)

// ResolveConcat recovers the original file from one finished part, e.g.
// "movie.mkv.part3.split" -> destination "movie.mkv" with every
// "movie.mkv*.split" sibling as sources in index order.
func ResolveConcat(marked, marker string) ([]string, string, error) {
	marked = strings.TrimSpace(marked)
	if marked == "" {
		return nil, "", fmt.Errorf("%w: part path is required", ErrInvalidArgument)
	}
	marker = strings.TrimPrefix(strings.TrimSpace(marker), ".")
	if marker == "" {
		marker = DefaultMarkerExtension
	}

	name := filepath.Base(marked)
	hasMarker := strings.HasSuffix(name, "."+marker)
	if hasMarker {
		name = strings.TrimSuffix(name, "."+marker)
	}
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return nil, "", fmt.Errorf("%w: %s does not look like a split part", ErrInvalidArgument, marked)
	}
	base := strings.TrimSuffix(name, ext)
	dir := filepath.Dir(marked)

	files, err := fsprobe.ListPrefix(dir, base)
	if err != nil {
		return nil, "", err
	}
	sources := make([]string, 0, len(files))
	for _, f := range files {
		n := filepath.Base(f)
		if n == base {
			continue
		}
		if hasMarker && !strings.HasSuffix(n, "."+marker) {
			continue
		}
		sources = append(sources, f)
	}
	if len(sources) == 0 {
		return nil, "", fmt.Errorf("%w: no parts found for %s in %s", ErrInvalidArgument, base, dir)
	}
	return sources, filepath.Join(dir, base), nil
}
