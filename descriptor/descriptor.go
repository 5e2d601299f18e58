// Package descriptor names the files that make up one SSTable generation
// and derives their paths from a Descriptor, the way Cassandra's
// Descriptor/Component pair does, adapted to the teacher's plain
// filepath.Join style (davidvella/xp/storage/local).
package descriptor

import (
	"fmt"
	"path/filepath"
)

// ComponentKind identifies one of the files belonging to an SSTable
// generation.
type ComponentKind int

const (
	Data ComponentKind = iota
	PrimaryIndex
	Summary
	Filter
	Statistics
	CompressionInfo
	Crc
	Digest
	Toc
)

var kindNames = map[ComponentKind]string{
	Data:             "Data",
	PrimaryIndex:     "Index",
	Summary:          "Summary",
	Filter:           "Filter",
	Statistics:       "Statistics",
	CompressionInfo:  "CompressionInfo",
	Crc:              "CRC",
	Digest:           "Digest",
	Toc:              "TOC",
}

// String returns the on-disk component name used in file names and TOC
// entries.
func (k ComponentKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// extension returns the filename suffix for the component kind: every
// component is a ".db" file except the TOC, which is plain text.
func (k ComponentKind) extension() string {
	if k == Toc {
		return "txt"
	}
	return "db"
}

const tempSuffix = "-tmp"

// Descriptor is the immutable identity of one SSTable generation: where
// it lives, which keyspace/table it belongs to, its on-disk format
// version, and its generation number.
type Descriptor struct {
	Directory  string
	Keyspace   string
	Table      string
	Version    string
	Generation int64
}

// baseName builds the shared prefix every component file for this
// generation uses: <keyspace>-<table>-<version>-<generation>.
func (d Descriptor) baseName() string {
	return fmt.Sprintf("%s-%s-%s-%d", d.Keyspace, d.Table, d.Version, d.Generation)
}

// FilenameFor returns the final, published path for the given component.
func (d Descriptor) FilenameFor(kind ComponentKind) string {
	name := fmt.Sprintf("%s-%s.%s", d.baseName(), kind, kind.extension())
	return filepath.Join(d.Directory, name)
}

// TempFilenameFor returns the temporary path a sink writes to before
// PrepareToCommit/Commit renames it into place.
func (d Descriptor) TempFilenameFor(kind ComponentKind) string {
	return d.FilenameFor(kind) + tempSuffix
}

// RequiredComponents lists the component kinds every successful build
// must emit: Data, PrimaryIndex, Summary, Filter, Statistics, Toc, and
// either Crc (uncompressed) or CompressionInfo (compressed).
func RequiredComponents(compressed bool) []ComponentKind {
	kinds := []ComponentKind{Data, PrimaryIndex, Summary, Filter, Statistics}
	if compressed {
		kinds = append(kinds, CompressionInfo)
	} else {
		kinds = append(kinds, Crc)
	}
	return append(kinds, Toc)
}
