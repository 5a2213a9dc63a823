// Package romfs lays out a hierarchical file tree into the Nintendo RomFS
// binary image: directory/file tables, twin hash-bucket indexes, and
// aligned data regions (spec.md §4.4).
package romfs

import "sort"

// Entry is a node in the source file tree passed to Encode. A node is
// either a directory (Children populated, Data nil) or a file (Data set,
// Children nil). Names are UTF-8 and never contain '/'; the implicit root
// has an empty name.
type Entry struct {
	Name     string
	Children []*Entry // directory: unordered on input, sorted on encode
	Data     []byte   // file: opaque bytes
}

func (e *Entry) IsDir() bool { return e.Children != nil || e.Data == nil }

// sortedChildren returns Children sorted by name in lexicographic byte
// order (spec.md §3: "sort order = lexicographic byte order when
// serialized").
func (e *Entry) sortedChildren() []*Entry {
	out := make([]*Entry, len(e.Children))
	copy(out, e.Children)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
