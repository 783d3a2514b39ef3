package blocks

import (
	"fmt"
	"strconv"
	"strings"

	"rmlines/internal/diag"
)

// Options control how blocks are written.
type Options struct {
	// Version selects the producer software version to emulate, e.g. "3.2.2".
	// Empty writes every block exactly as it was read.
	Version string
}

// Version is a dotted numeric software version.
type Version []int

// ParseVersion parses a version such as "3.14.4.2".
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return nil, fmt.Errorf("empty version: %w", diag.ErrInvalidValue)
	}
	parts := strings.Split(s, ".")
	v := make(Version, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("version %q: %w", s, diag.ErrInvalidValue)
		}
		v[i] = n
	}
	return v, nil
}

// Compare orders versions numerically; missing components count as zero.
func (v Version) Compare(other Version) int {
	for i := 0; i < max(len(v), len(other)); i++ {
		var a, b int
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Firmware releases that changed what is written.
var (
	versionPointsV2     = Version{3, 0}
	versionTypeFolio    = Version{3, 2, 2}
	versionInlineFormat = Version{3, 3, 2}
	versionSceneInfo    = Version{3, 6}
)

// encoder carries write options through block encoders.
type encoder struct {
	version Version
}

func newEncoder(opts Options) (*encoder, error) {
	if opts.Version == "" {
		return &encoder{}, nil
	}
	v, err := ParseVersion(opts.Version)
	if err != nil {
		return nil, err
	}
	return &encoder{version: v}, nil
}

// emulating reports whether a version was requested.
func (e *encoder) emulating() bool {
	return e.version != nil
}

// include decides whether an optional field is written: as read when not
// emulating, otherwise only from the release that introduced it.
func (e *encoder) include(present bool, since Version) bool {
	if !e.emulating() {
		return present
	}
	return present && e.version.Compare(since) >= 0
}

// pointVersion returns the point layout to use for a line block.
func (e *encoder) pointVersion(read uint8, framed bool) uint8 {
	switch {
	case e.emulating() && e.version.Compare(versionPointsV2) < 0:
		return 1
	case e.emulating():
		return 2
	case framed && read == 1:
		return 1
	default:
		return 2
	}
}
