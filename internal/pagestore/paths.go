package pagestore

import (
	"fmt"
	"path"
	"strings"
)

const (
	lockFilename         = "grebedb_lock.lock"
	metadataFilename     = "grebedb_meta.grebedb"
	metadataTmpFilename  = "grebedb_meta.grebedb.tmp"
	metadataBakFilename  = "grebedb_meta_bak.grebedb"
	metadataPrevFilename = "grebedb_meta_prev.grebedb"
)

// pageDir splits a zero-padded 16-hex-digit page ID into seven two-digit
// directory levels built from its first fourteen hex digits; the file
// inside it (see pagePath) is named with the full sixteen hex digits and
// the revision parity slot. This keeps any single directory from ever
// holding more than 512 node files (256 IDs, two slots each) even for a
// huge tree.
func pageDir(base string, id PageID) string {
	hex := fmt.Sprintf("%016x", uint64(id))
	levels := make([]string, 0, 8)
	levels = append(levels, base)
	for i := 0; i < 14; i += 2 {
		levels = append(levels, hex[i:i+2])
	}
	return path.Join(levels...)
}

// pagePath returns the full path to the page file for id at the given
// revision parity slot (0 or 1).
func pagePath(base string, id PageID, slot int) string {
	hex := fmt.Sprintf("%016x", uint64(id))
	dir := pageDir(base, id)
	return path.Join(dir, fmt.Sprintf("grebedb_%s_%d.grebedb", hex, slot))
}

// slotFor returns which of the two copy-on-write slots a given revision
// should be written to: even revisions use slot 0, odd revisions slot 1.
func slotFor(rev Revision) int {
	return int(rev % 2)
}

func isPageFilename(name string) (PageID, int, bool) {
	if !strings.HasPrefix(name, "grebedb_") || !strings.HasSuffix(name, ".grebedb") {
		return 0, 0, false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "grebedb_"), ".grebedb")
	parts := strings.Split(trimmed, "_")
	if len(parts) != 2 {
		return 0, 0, false
	}
	var id uint64
	var slot int
	if _, err := fmt.Sscanf(parts[0], "%016x", &id); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &slot); err != nil {
		return 0, 0, false
	}
	return PageID(id), slot, true
}
