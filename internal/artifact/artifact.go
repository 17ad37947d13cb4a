// Package artifact classifies a local source file into the remote tooling kind
// it deploys as, and derives the names the deploy protocol needs.
package artifact

import (
	"os"
	"path/filepath"
	"strings"
)

// Kind is the remote metadata type of a source file.
type Kind string

const (
	KindUnknown        Kind = ""
	KindApexClass      Kind = "ApexClass"
	KindApexTrigger    Kind = "ApexTrigger"
	KindApexPage       Kind = "ApexPage"
	KindApexComponent  Kind = "ApexComponent"
	KindAuraDefinition Kind = "AuraDefinition"
	KindPermissionSet  Kind = "PermissionSet"
	KindCustomObject   Kind = "CustomObject"
)

// auraDir is the directory that holds one sub-directory per Lightning bundle.
const auraDir = "aura"

var kindsByExtension = map[string]Kind{
	"cls":           KindApexClass,
	"trigger":       KindApexTrigger,
	"page":          KindApexPage,
	"component":     KindApexComponent,
	"permissionset": KindPermissionSet,
	"object":        KindCustomObject,
}

var auraExtensions = map[string]bool{
	"app": true, "cmp": true, "auradoc": true, "css": true,
	"evt": true, "design": true, "svg": true, "js": true,
}

// Artifact is one document being deployed. It is read-only for the whole deploy.
type Artifact struct {
	Path      string // file-system identity, used as the diagnostic key
	Body      string
	Extension string // lower case, no dot
	Kind      Kind
	Name      string // logical name: bundle name for Aura members, else FileName
	FileName  string // base name without extension, e.g. "FooController" or "acme__Foo"
	BaseName  string // base name with extension, e.g. "Foo.cmp"
}

// Known reports whether the tooling kind was determined.
func (a Artifact) Known() bool {
	return a.Kind != KindUnknown
}

// MemberKind is the container member type used to stage an update of an
// existing record of this kind, e.g. ApexClassMember.
func (k Kind) MemberKind() string {
	return string(k) + "Member"
}

// FromFile classifies a document. It never fails: an unrecognised document
// yields KindUnknown and callers decide what that means.
func FromFile(path, body string) Artifact {
	base := filepath.Base(path)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	fileName := strings.TrimSuffix(base, filepath.Ext(base))

	a := Artifact{
		Path:      path,
		Body:      body,
		Extension: ext,
		FileName:  fileName,
		BaseName:  base,
		Name:      fileName,
	}

	bundleDir := filepath.Dir(path)
	if auraExtensions[ext] && filepath.Base(filepath.Dir(bundleDir)) == auraDir {
		a.Kind = KindAuraDefinition
		a.Name = filepath.Base(bundleDir)
		return a
	}

	a.Kind = kindsByExtension[ext]
	return a
}

// Load reads a document from disk and classifies it by its absolute
// location, so a bare file name inside a bundle directory still resolves.
// Path keeps the form the caller gave.
func Load(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Artifact{}, err
	}
	a := FromFile(abs, string(data))
	a.Path = path
	return a, nil
}
