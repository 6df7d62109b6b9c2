package doctype

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/synthlane/reload-watcher/internal/constants"
)

// timestamp layouts accepted when reading an existing "modified" value
var modifiedLayouts = []string{
	constants.ModifiedLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
	time.RFC3339Nano,
}

// PatchResult describes a completed patch.
type PatchResult struct {
	Modified time.Time
	Digest   string
}

// Patcher bumps the "modified" field of record files.
type Patcher struct {
	now func() time.Time
}

// NewPatcher creates a Patcher reading wall-clock time from now, or from
// time.Now when now is nil.
func NewPatcher(now func() time.Time) *Patcher {
	if now == nil {
		now = time.Now
	}
	return &Patcher{now: now}
}

// Patch rewrites the record at path in place with a fresh "modified" value.
// Top-level members keep their order and raw values; the file is re-indented
// with the one-space indent the framework writes.
func (p *Patcher) Patch(path string) (PatchResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return PatchResult{}, &IOError{Path: path, Op: "stat", Err: err}
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from a watched root
	if err != nil {
		return PatchResult{}, &IOError{Path: path, Op: "read", Err: err}
	}

	members, err := decodeObject(data)
	if err != nil {
		return PatchResult{}, &MalformedRecordError{Path: path, Err: err}
	}

	modified := p.nextModified(members)
	value, err := encodeString(modified.Format(constants.ModifiedLayout))
	if err != nil {
		return PatchResult{}, &MalformedRecordError{Path: path, Err: err}
	}
	members = setMember(members, constants.ModifiedField, value)

	out, err := encodeObject(members)
	if err != nil {
		return PatchResult{}, &MalformedRecordError{Path: path, Err: err}
	}

	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return PatchResult{}, &IOError{Path: path, Op: "write", Err: err}
	}

	return PatchResult{Modified: modified, Digest: Digest(out)}, nil
}

// nextModified returns the current time truncated to microseconds, moved
// past any existing "modified" value so the result is strictly greater.
func (p *Patcher) nextModified(members []member) time.Time {
	now := p.now().Truncate(time.Microsecond)
	for _, m := range members {
		if m.key != constants.ModifiedField {
			continue
		}
		prev, ok := parseModified(m.raw)
		if ok && !now.After(prev) {
			now = prev.Add(time.Microsecond)
		}
	}
	return now
}

func parseModified(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	for _, layout := range modifiedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Digest returns the hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileDigest returns the Digest of the file at path.
func FileDigest(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from a watched root
	if err != nil {
		return "", err
	}
	return Digest(data), nil
}

type member struct {
	key string
	raw json.RawMessage
}

func decodeObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("top-level value is not an object")
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("member %q: %w", key, err)
		}
		members = append(members, member{key: key, raw: raw})
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after top-level object")
	}
	return members, nil
}

func setMember(members []member, key string, value json.RawMessage) []member {
	found := false
	for i := range members {
		if members[i].key == key {
			members[i].raw = value
			found = true
		}
	}
	if !found {
		members = append(members, member{key: key, raw: value})
	}
	return members
}

func encodeObject(members []member) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			compact.WriteByte(',')
		}
		key, err := encodeString(m.key)
		if err != nil {
			return nil, err
		}
		compact.Write(key)
		compact.WriteByte(':')
		compact.Write(m.raw)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", constants.RecordIndent); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func encodeString(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
