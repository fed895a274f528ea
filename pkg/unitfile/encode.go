package unitfile

import (
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-lsra/pkg/regalloc"
)

// Format selects how results are written.
type Format string

const (
	FormatText    Format = "text"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// Formats lists the supported output formats.
var Formats = []Format{FormatText, FormatYAML, FormatMsgpack}

// ParseFormat converts a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (expected: text|yaml|msgpack)", s)
}

// Encode writes results to w in the given format.
func Encode(w io.Writer, format Format, results []*regalloc.Result) error {
	switch format {
	case FormatText:
		regalloc.NewPrinter(w).PrintResults(results)
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return EncodeMsgpack(w, results)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// EncodeMsgpack writes results as one MessagePack array, the form code
// generators read back with DecodeMsgpack.
func EncodeMsgpack(w io.Writer, results []*regalloc.Result) error {
	return msgpack.NewEncoder(w).Encode(results)
}

// DecodeMsgpack reads results written by EncodeMsgpack.
func DecodeMsgpack(r io.Reader) ([]*regalloc.Result, error) {
	var results []*regalloc.Result
	if err := msgpack.NewDecoder(r).Decode(&results); err != nil {
		return nil, err
	}
	return results, nil
}
