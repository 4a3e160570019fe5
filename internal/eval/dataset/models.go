package dataset

import (
	"path/filepath"
	"strings"
)

// Record is one evaluation sample: the images of a vocabulary page and the
// rows a correct extraction should produce.
type Record struct {
	ID string `json:"id" parquet:"id"`

	// Images holds data URLs or file paths. Relative paths are resolved
	// against the directory of the dataset file.
	Images []string `json:"images" parquet:"images,list"`

	// Expected is the reference output, one tab separated
	// term / meaning / example row per line
	Expected string `json:"expected" parquet:"expected"`
}

// IsDataURL reports whether the image reference is already inline
func IsDataURL(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "data:")
}

// ImagePaths returns the record's file references resolved against baseDir.
// Inline data URLs are returned unchanged.
func (r *Record) ImagePaths(baseDir string) []string {
	out := make([]string, len(r.Images))
	for i, ref := range r.Images {
		if IsDataURL(ref) || filepath.IsAbs(ref) || baseDir == "" {
			out[i] = ref
			continue
		}
		out[i] = filepath.Join(baseDir, ref)
	}
	return out
}
