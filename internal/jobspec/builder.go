// Package jobspec builds immutable job descriptions from user-chosen paths.
package jobspec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"splitcat/internal/fsprobe"
	"splitcat/internal/model"
)

const (
	MinChunkCount = 2
	MaxChunkCount = 99

	DefaultTemplateSuffix  = ".part"
	DefaultMarkerExtension = "split"
)

var ErrInvalidArgument = errors.New("invalid argument")

// BuildSplit describes splitting source into chunkCount parts named
// "<destinationTemplate><index>".
func BuildSplit(source, destinationTemplate string, chunkCount int) (model.JobSpec, error) {
	source = strings.TrimSpace(source)
	destinationTemplate = strings.TrimSpace(destinationTemplate)
	if source == "" {
		return model.JobSpec{}, fmt.Errorf("%w: split source is required", ErrInvalidArgument)
	}
	if destinationTemplate == "" || strings.HasSuffix(destinationTemplate, string(filepath.Separator)) {
		return model.JobSpec{}, fmt.Errorf("%w: split destination template needs a file name", ErrInvalidArgument)
	}
	if chunkCount < MinChunkCount {
		return model.JobSpec{}, fmt.Errorf("%w: chunk count must be >= %d, got %d", ErrInvalidArgument, MinChunkCount, chunkCount)
	}
	return model.NewJobSpec(
		uuid.NewString(),
		model.KindSplit,
		[]string{source},
		destinationTemplate,
		chunkCount,
		SuffixWidth(chunkCount),
		fsprobe.FileSize(source),
	), nil
}

// BuildConcat describes concatenating sources, in order, into destination.
// Unreadable sources count as zero bytes; the tool reports the real error.
func BuildConcat(sources []string, destination string) (model.JobSpec, error) {
	if len(sources) == 0 {
		return model.JobSpec{}, fmt.Errorf("%w: concat needs at least one source", ErrInvalidArgument)
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return model.JobSpec{}, fmt.Errorf("%w: concat destination is required", ErrInvalidArgument)
	}
	clean := make([]string, 0, len(sources))
	var total uint64
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			return model.JobSpec{}, fmt.Errorf("%w: empty source path", ErrInvalidArgument)
		}
		clean = append(clean, s)
		total += fsprobe.FileSize(s)
	}
	return model.NewJobSpec(
		uuid.NewString(),
		model.KindConcat,
		clean,
		destination,
		0,
		0,
		total,
	), nil
}

// SuffixWidth is ceil(log10(chunkCount)): the digit count of the largest
// part index, chunkCount-1.
func SuffixWidth(chunkCount int) int {
	if chunkCount < MinChunkCount {
		return 1
	}
	return len(strconv.Itoa(chunkCount - 1))
}

// PartName returns the file name of part index for a split template.
func PartName(template string, index, width int) string {
	return fmt.Sprintf("%s%0*d", filepath.Base(template), width, index)
}

// DefaultSplitTemplate places parts next to the source unless destDir is set.
func DefaultSplitTemplate(source, destDir, suffix string) string {
	if strings.TrimSpace(suffix) == "" {
		suffix = DefaultTemplateSuffix
	}
	dir := strings.TrimSpace(destDir)
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, filepath.Base(source)+suffix)
}
