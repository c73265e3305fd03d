// Package batchfile reads batch descriptions for the command line.
//
// A batch file is YAML:
//
//	label: Sheet1
//	urls:
//	  - url: https://www.tiktok.com/@user/video/7300000000000000001
//	    platform: tiktok
//	  - url: https://storage.googleapis.com/bucket/raw/clip.mp4
//	    platform: gcs
//
// JSON files with the same keys are accepted too. Platform tags are kept
// exactly as written; an unknown or missing tag fails only its own item.
package batchfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maauso/clipgrab/internal/batch"
)

// Static errors for batch file validation.
var (
	ErrNoURLs     = errors.New("batchfile: no urls")
	ErrMissingURL = errors.New("batchfile: url is required")
)

// File is a parsed batch file.
type File struct {
	Label string               `yaml:"label"`
	URLs  []batch.VideoRequest `yaml:"urls"`
}

// Load reads and validates the batch file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a batch description. JSON input is valid
// YAML, so both formats go through the YAML decoder.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}

	if len(f.URLs) == 0 {
		return nil, ErrNoURLs
	}
	for i := range f.URLs {
		req := &f.URLs[i]
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			return nil, fmt.Errorf("%w (entry %d)", ErrMissingURL, i)
		}
	}

	return &f, nil
}
