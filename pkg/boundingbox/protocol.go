package boundingbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ArtifactName is the fixed file name the external estimation writes next to
// the node's primary output.
const ArtifactName = "boundingBox.txt"

// valueCount is the number of float tokens the artifact must contain.
const valueCount = 9

// Vec3 is a triplet of float parameters.
type Vec3 struct {
	X, Y, Z float64
}

// Box is the bounding box estimated by the external reconstruction: a
// translation, an Euler rotation and a scale, in that order.
type Box struct {
	Translation Vec3
	Rotation    Vec3
	Scale       Vec3
}

// Values returns the box as the flat 9-value sequence used by the artifact
// format: translation x,y,z then rotation x,y,z then scale x,y,z.
func (b Box) Values() [valueCount]float64 {
	return [valueCount]float64{
		b.Translation.X, b.Translation.Y, b.Translation.Z,
		b.Rotation.X, b.Rotation.Y, b.Rotation.Z,
		b.Scale.X, b.Scale.Y, b.Scale.Z,
	}
}

// FromValues builds a Box from the flat 9-value artifact order.
func FromValues(v [valueCount]float64) Box {
	return Box{
		Translation: Vec3{v[0], v[1], v[2]},
		Rotation:    Vec3{v[3], v[4], v[5]},
		Scale:       Vec3{v[6], v[7], v[8]},
	}
}

// ParseError reports a malformed artifact: wrong token count or a token that
// is not a float literal.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("bounding box artifact: %s", e.Reason)
	}
	return fmt.Sprintf("bounding box artifact %s: %s", e.Path, e.Reason)
}

// ArtifactPath derives the artifact location from the node's primary output
// artifact: same directory, fixed file name.
func ArtifactPath(primaryOutput string) string {
	return filepath.Join(filepath.Dir(primaryOutput), ArtifactName)
}

// Parse reads an artifact: exactly 9 newline-separated float tokens.
func Parse(r io.Reader) (Box, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Box{}, fmt.Errorf("failed to read bounding box artifact: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return Box{}, &ParseError{Reason: "empty file, expected 9 values"}
	}

	lines := strings.Split(content, "\n")
	if len(lines) != valueCount {
		return Box{}, &ParseError{Reason: fmt.Sprintf("expected %d values, got %d", valueCount, len(lines))}
	}

	var values [valueCount]float64
	for i, line := range lines {
		v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return Box{}, &ParseError{Reason: fmt.Sprintf("value %d is not a float: %q", i+1, strings.TrimSpace(line))}
		}
		values[i] = v
	}

	return FromValues(values), nil
}

// ParseFile parses the artifact at path.
func ParseFile(path string) (Box, error) {
	f, err := os.Open(path)
	if err != nil {
		return Box{}, fmt.Errorf("failed to open bounding box artifact: %w", err)
	}
	defer f.Close()

	box, err := Parse(f)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return Box{}, err
	}
	return box, nil
}
