package unitfile

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-lsra/pkg/regalloc"
)

func allocateSpill(t *testing.T) []*regalloc.Result {
	t.Helper()
	units, err := decodeString(t, spillYAML).Build("arm64")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var results []*regalloc.Result
	for _, u := range units {
		results = append(results, regalloc.Allocate(u, regalloc.Options{Verify: true}))
	}
	return results
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(strings.ToUpper(string(f)))
		if err != nil || got != f {
			t.Errorf("ParseFormat(%q) = %q, %v", f, got, err)
		}
	}
	if _, err := ParseFormat("json"); err == nil {
		t.Error("expected error for json")
	}
}

func TestEncodeText(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatText, allocateSpill(t)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"spill() on tiny2 {", "args() on tiny2 {", "; spilled: A"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestEncodeYAML(t *testing.T) {
	results := allocateSpill(t)
	var buf bytes.Buffer
	if err := Encode(&buf, FormatYAML, results); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(buf.String(), "  - id: 0\n") && !strings.Contains(buf.String(), "- id: 0\n") {
		t.Errorf("unexpected yaml layout:\n%s", buf.String())
	}

	var decoded []*regalloc.Result
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded, results) {
		t.Errorf("yaml output does not decode to the results:\n%s", buf.String())
	}
}

func TestEncodeMsgpack(t *testing.T) {
	results := allocateSpill(t)
	var buf bytes.Buffer
	if err := Encode(&buf, FormatMsgpack, results); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeMsgpack(&buf)
	if err != nil {
		t.Fatalf("DecodeMsgpack: %v", err)
	}
	if !reflect.DeepEqual(decoded, results) {
		t.Errorf("msgpack round trip changed the results:\n%+v\n%+v", decoded, results)
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	if err := Encode(&bytes.Buffer{}, Format("xml"), nil); err == nil {
		t.Error("expected error for unknown format")
	}
}
