package e2fs

import (
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
)

// SearchHit is one matching name found by Search, together with the
// directory block and parent inode it was found in (spec.md §4.10).
type SearchHit struct {
	ParentInode uint32
	DirBlock    uint32
	ChildInode  uint32
	Name        string
}

// Search scans every directory-shaped block recorded by a completed
// Analyzer run for entries whose name matches re, memoizing the full
// result set to disk keyed by the pattern's md5 so a repeated query
// against the same image and analysis doesn't re-walk every directory
// block (spec.md §4.10). Grounded on original_source/pyutil/main.py's
// search, whose disk cache key is the regex text hashed the same way.
func Search(sb *Superblock, an *Analyzer, cacheDir string, re *regexp.Regexp) ([]SearchHit, error) {
	key := cacheKey(cacheDir, "search", re.String())
	if hits, ok := loadHitCache(key); ok {
		return hits, nil
	}
	var out []SearchHit
	for _, blkid := range an.DirectoryBlockIDs() {
		db := NewDirectoryBlock(sb, blkid)
		entries, err := db.EachEntry()
		if err != nil {
			return nil, err
		}
		parentID := ownerInode(entries)
		for _, e := range entries {
			if e.IsTombstone() {
				continue
			}
			name, err := e.Name()
			if err != nil {
				continue
			}
			if re.Match(name) {
				out = append(out, SearchHit{
					ParentInode: parentID, DirBlock: blkid,
					ChildInode: e.Inode(), Name: string(name),
				})
			}
		}
	}
	_ = saveHitCache(key, out)
	return out, nil
}

// ISearch finds every directory entry across every recorded
// directory-shaped block whose inode field equals id — the reverse
// lookup spec.md §4.10 calls isearch, used to find every name under
// which an inode appears (hardlinks, or a stale entry left after
// deletion).
func ISearch(sb *Superblock, an *Analyzer, cacheDir string, id uint32) ([]SearchHit, error) {
	key := cacheKey(cacheDir, "isearch", hex.EncodeToString([]byte{
		byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id),
	}))
	if hits, ok := loadHitCache(key); ok {
		return hits, nil
	}
	var out []SearchHit
	for _, blkid := range an.DirectoryBlockIDs() {
		db := NewDirectoryBlock(sb, blkid)
		entries, err := db.EachEntry()
		if err != nil {
			return nil, err
		}
		parentID := ownerInode(entries)
		for _, e := range entries {
			if e.Inode() != id {
				continue
			}
			name, err := e.Name()
			if err != nil {
				continue
			}
			out = append(out, SearchHit{
				ParentInode: parentID, DirBlock: blkid,
				ChildInode: id, Name: string(name),
			})
		}
	}
	_ = saveHitCache(key, out)
	return out, nil
}

// ownerInode returns the inode id a directory block belongs to, read off
// its own "." entry (present in the first block of a directory), or 0 if
// the block has none.
func ownerInode(entries []*DirectoryEntry) uint32 {
	for _, e := range entries {
		name, err := e.Name()
		if err == nil && string(name) == "." {
			return e.Inode()
		}
	}
	return 0
}

// cacheKey derives the on-disk cache path for a query: md5(kind+pattern)
// under cacheDir, matching original_source/pyutil/main.py's memoize
// decorator's key derivation.
func cacheKey(cacheDir, kind, pattern string) string {
	sum := md5.Sum([]byte(kind + "\x00" + pattern))
	return filepath.Join(cacheDir, kind+"-"+hex.EncodeToString(sum[:])+".gob")
}

func loadHitCache(path string) ([]SearchHit, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	var hits []SearchHit
	if err := gob.NewDecoder(f).Decode(&hits); err != nil {
		return nil, false
	}
	return hits, true
}

func saveHitCache(path string, hits []SearchHit) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(hits); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
