package export

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Format is a snapshot encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatCBOR:
		return "cbor"
	default:
		return "json"
	}
}

// Extension returns the file extension for the format, with its dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat parses "json", "yaml" (or "yml") and "cbor".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return FormatJSON, fmt.Errorf("unknown export format: %q", s)
	}
}

// Schema is the JSON schema of a snapshot in JSON form.
//
//go:embed schema/snapshot-v1.schema.json
var Schema []byte

// encMode writes CBOR with Core Deterministic Encoding, so equal snapshots
// produce equal bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("export: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encode writes snap to w in the given format.
func Encode(w io.Writer, snap *Snapshot, f Format) error {
	var err error
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(snap); err == nil {
			err = enc.Close()
		}
	case FormatCBOR:
		err = encMode.NewEncoder(w).Encode(snap)
	default:
		return fmt.Errorf("unknown export format %d", int(f))
	}
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", f, err)
	}
	return nil
}
