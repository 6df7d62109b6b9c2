package doctype

import (
	"path/filepath"
	"strings"

	"github.com/synthlane/reload-watcher/internal/constants"
)

// recordDepth is the number of path segments between an app root and a
// record file: {app}/{module}/{doctype}/{name}/{name}.json.
const recordDepth = 5

// WatchedRoot is an application directory the watcher subscribes to.
type WatchedRoot struct {
	App       string `json:"app" yaml:"app"`
	Dir       string `json:"dir" yaml:"dir"`
	Recursive bool   `json:"recursive" yaml:"recursive"`
}

// RecordRef is the logical identity of a reloadable record.
type RecordRef struct {
	App     string `json:"app"`
	Module  string `json:"module"`
	DocType string `json:"doctype"`
	Name    string `json:"name"`
}

// String renders the ref the way bench reload-doc addresses it.
func (r RecordRef) String() string {
	return r.Module + "/" + r.DocType + "/" + r.Name
}

// IsZero reports whether r is the empty ref.
func (r RecordRef) IsZero() bool {
	return r == RecordRef{}
}

// Classify returns the record addressed by path, or false when path does not
// follow the record layout under any of roots. When roots nest, the deepest
// one wins.
func Classify(path string, roots []WatchedRoot) (RecordRef, bool) {
	var (
		best    WatchedRoot
		bestLen = -1
	)
	clean := filepath.Clean(path)
	for _, root := range roots {
		dir := filepath.Clean(root.Dir)
		if !within(clean, dir) {
			continue
		}
		if len(dir) > bestLen {
			best, bestLen = root, len(dir)
		}
	}
	if bestLen < 0 {
		return RecordRef{}, false
	}
	return ClassifyRoot(clean, best)
}

// ClassifyRoot is Classify against a single root.
func ClassifyRoot(path string, root WatchedRoot) (RecordRef, bool) {
	if filepath.Ext(path) != constants.RecordExt {
		return RecordRef{}, false
	}

	rel, err := filepath.Rel(filepath.Clean(root.Dir), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return RecordRef{}, false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != recordDepth {
		return RecordRef{}, false
	}
	for _, p := range parts {
		if p == "" {
			return RecordRef{}, false
		}
	}

	app, module, doctype, name, file := parts[0], parts[1], parts[2], parts[3], parts[4]
	if app != root.App {
		return RecordRef{}, false
	}
	if file != name+constants.RecordExt {
		return RecordRef{}, false
	}

	return RecordRef{
		App:     root.App,
		Module:  module,
		DocType: doctype,
		Name:    name,
	}, true
}

// DocTypeName converts a doctype directory slug such as "onboarding_step"
// into the DocType name "Onboarding Step".
func DocTypeName(slug string) string {
	words := strings.Split(slug, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
