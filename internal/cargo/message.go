package cargo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// Message is one record of cargo's --message-format=json output.
// It is one of TextLine, CompilerMessage, Artifact, BuildFinished or Other.
type Message interface {
	isMessage()
}

// TextLine is a line that is not a JSON record, usually printed by a build
// script or by the program under `cargo run`.
type TextLine string

// CompilerMessage is a diagnostic emitted by rustc.
type CompilerMessage struct {
	PackageID string
	Message   string
	// Rendered is the human readable form, nil when rustc did not provide one.
	Rendered *string
	Level    string
}

// Artifact reports a compiled target.
type Artifact struct {
	PackageID  string
	Target     Target
	Filenames  []string
	Executable string
	Fresh      bool
}

// Target describes a cargo target (bin, lib, test, ...).
type Target struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

// BuildFinished is the last record of a build.
type BuildFinished struct {
	Success bool
}

// Other is any record we do not interpret.
type Other struct {
	Reason string
}

func (TextLine) isMessage()        {}
func (CompilerMessage) isMessage() {}
func (Artifact) isMessage()        {}
func (BuildFinished) isMessage()   {}
func (Other) isMessage()           {}

type rawMessage struct {
	Reason     string         `json:"reason"`
	PackageID  string         `json:"package_id"`
	Message    *rawDiagnostic `json:"message"`
	Target     Target         `json:"target"`
	Filenames  []string       `json:"filenames"`
	Executable *string        `json:"executable"`
	Fresh      bool           `json:"fresh"`
	Success    bool           `json:"success"`
}

type rawDiagnostic struct {
	Message  string  `json:"message"`
	Rendered *string `json:"rendered"`
	Level    string  `json:"level"`
}

// ParseMessage decodes a single output line. Lines that are not JSON
// objects with a "reason" field are returned as TextLine.
func ParseMessage(line []byte) Message {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return TextLine(line)
	}
	var raw rawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil || raw.Reason == "" {
		return TextLine(line)
	}
	switch raw.Reason {
	case "compiler-message":
		if raw.Message == nil {
			return Other{Reason: raw.Reason}
		}
		return CompilerMessage{
			PackageID: raw.PackageID,
			Message:   raw.Message.Message,
			Rendered:  raw.Message.Rendered,
			Level:     raw.Message.Level,
		}
	case "compiler-artifact":
		a := Artifact{
			PackageID: raw.PackageID,
			Target:    raw.Target,
			Filenames: raw.Filenames,
			Fresh:     raw.Fresh,
		}
		if raw.Executable != nil {
			a.Executable = *raw.Executable
		}
		return a
	case "build-finished":
		return BuildFinished{Success: raw.Success}
	default:
		return Other{Reason: raw.Reason}
	}
}

// maxLineSize bounds a single record; rendered diagnostics can be long.
const maxLineSize = 16 << 20

// ParseStream reads r line by line and calls fn for every record, in order.
func ParseStream(r io.Reader, fn func(Message)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for scanner.Scan() {
		fn(ParseMessage(scanner.Bytes()))
	}
	return scanner.Err()
}

// Artifacts returns the artifacts found in a captured JSON output.
func Artifacts(output []byte) ([]Artifact, error) {
	var artifacts []Artifact
	err := ParseStream(bytes.NewReader(output), func(m Message) {
		if a, ok := m.(Artifact); ok {
			artifacts = append(artifacts, a)
		}
	})
	return artifacts, err
}

// Executables filters artifacts down to runnable ones, skipping build scripts.
func Executables(artifacts []Artifact) []Artifact {
	var out []Artifact
	for _, a := range artifacts {
		if a.Executable == "" || a.IsKind("custom-build") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// IsKind reports whether the artifact's target has the given kind.
func (a Artifact) IsKind(kind string) bool {
	for _, k := range a.Target.Kind {
		if k == kind {
			return true
		}
	}
	return false
}
