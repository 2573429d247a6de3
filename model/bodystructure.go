package model

import "strings"

// PartKind distinguishes the three BODYSTRUCTURE single-part flavors
// defined by RFC 3501 §7.4.2: a basic type/subtype, a textual part
// (whose second field is the subtype), and an encapsulated RFC 822
// message.
type PartKind int

const (
	PartBasic PartKind = iota
	PartText
	PartMessageRFC822
)

// BasicFields carries the attributes common to every BODYSTRUCTURE leaf.
type BasicFields struct {
	Type        string // MIME type, e.g. "text", "application"
	Subtype     string // MIME subtype, e.g. "plain", "octet-stream"
	Params      map[string]string
	ID          string
	Description string
	Encoding    string
	Size        uint32 // octets, before any decoding
}

// ExtensionFields carries the BODYSTRUCTURE extension data the spec
// requires for disposition/filename/language; absent unless the server
// sent it.
type ExtensionFields struct {
	Disposition     string
	DispositionParams map[string]string
	Language        []string
}

// BodyStructure is the recursive BODYSTRUCTURE sum type (spec §3): a
// SinglePart leaf or a MultiPart node with children. Part numbering
// follows RFC 3501 §6.4.5: the root single-part message is "1"; nested
// multipart children are "1", "2", ... recursively.
type BodyStructure struct {
	// Single-part fields (valid when Multipart == false).
	Kind      PartKind
	Fields    BasicFields
	Extension *ExtensionFields

	// Multipart fields (valid when Multipart == true).
	Multipart bool
	Subtype   string // multipart subtype, e.g. "mixed", "alternative"
	Children  []*BodyStructure
}

// Filename returns the part's filename from the Content-Disposition
// "filename" parameter, falling back to the Content-Type "name"
// parameter, per common (non-conformant-server) practice.
func (b *BodyStructure) Filename() string {
	if b.Extension != nil {
		if name, ok := b.Extension.DispositionParams["filename"]; ok {
			return name
		}
	}
	if name, ok := b.Fields.Params["name"]; ok {
		return name
	}
	return ""
}

// ContentType returns "type/subtype" in lowercase.
func (b *BodyStructure) ContentType() string {
	if b.Multipart {
		return "multipart/" + strings.ToLower(b.Subtype)
	}
	return strings.ToLower(b.Fields.Type + "/" + b.Fields.Subtype)
}

// LeafSection pairs a leaf BodyStructure with its section path, produced
// by WalkLeaves.
type LeafSection struct {
	Section []int
	Part    *BodyStructure
}

// WalkLeaves performs the depth-first traversal required by spec §4.5:
// for a single-part message the sole leaf is numbered [1]; for a
// multipart message each child is numbered with its 1-based index
// appended to the parent's path, recursed into if it is itself
// multipart.
func (b *BodyStructure) WalkLeaves() []LeafSection {
	if !b.Multipart {
		return []LeafSection{{Section: []int{1}, Part: b}}
	}
	var out []LeafSection
	walkChildren(b.Children, nil, &out)
	return out
}

func walkChildren(children []*BodyStructure, prefix []int, out *[]LeafSection) {
	for i, child := range children {
		path := append(append([]int{}, prefix...), i+1)
		if child.Multipart {
			walkChildren(child.Children, path, out)
			continue
		}
		*out = append(*out, LeafSection{Section: path, Part: child})
	}
}
