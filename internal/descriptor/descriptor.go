// Package descriptor reads launchd property-list descriptors and locates them
// across the standard search directories.
package descriptor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

// Extension is the file extension launchd descriptors use.
const Extension = ".plist"

// ErrNotFound is returned when no descriptor exists for a label.
var ErrNotFound = errors.New("descriptor not found")

// Descriptor holds the fields of a launchd job definition that launchmon
// reads. Unknown keys are ignored.
type Descriptor struct {
	Label             string   `plist:"Label"`
	Program           string   `plist:"Program"`
	ProgramArguments  []string `plist:"ProgramArguments"`
	RunAtLoad         bool     `plist:"RunAtLoad"`
	Disabled          bool     `plist:"Disabled"`
	StandardOutPath   string   `plist:"StandardOutPath"`
	StandardErrorPath string   `plist:"StandardErrorPath"`
}

// Decode parses an XML or binary property list.
func Decode(data []byte) (Descriptor, error) {
	var d Descriptor
	if _, err := plist.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	return d, nil
}

// ReadFile decodes the descriptor stored at path.
func ReadFile(path string) (Descriptor, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the search directories
	if err != nil {
		return Descriptor{}, err
	}
	return Decode(data)
}

// Describe returns the executable name of the job: the final path component
// of Program, or of the first ProgramArguments entry. Empty when neither is set.
func (d Descriptor) Describe() string {
	program := strings.TrimSpace(d.Program)
	if program == "" && len(d.ProgramArguments) > 0 {
		program = strings.TrimSpace(d.ProgramArguments[0])
	}
	if program == "" {
		return ""
	}
	return filepath.Base(program)
}

// Render returns a readable XML rendering of the descriptor at path. Binary
// property lists are converted; content that does not decode is returned raw.
func Render(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the search directories
	if err != nil {
		return "", err
	}
	var v any
	if _, err := plist.Unmarshal(data, &v); err != nil {
		return string(data), nil
	}
	out, err := plist.MarshalIndent(v, plist.XMLFormat, "\t")
	if err != nil {
		return string(data), nil
	}
	return string(out), nil
}
