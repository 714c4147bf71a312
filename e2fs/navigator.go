package e2fs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// NameOrInode resolves token to an inode id (spec.md §4.8): if token parses
// as an integer, that value is returned directly; otherwise every
// directory block of parentInode is scanned (zero_ok=true, since a
// directory's each_block may legitimately include blocks addressed via
// zero-valued unused indirect slots being skipped) for an entry whose name
// case-insensitively equals token. Grounded on
// original_source/pyutil/main.py's name_or_inode.
func NameOrInode(token string, parentInode *Inode) (uint32, error) {
	if n, err := strconv.ParseUint(token, 10, 32); err == nil {
		return uint32(n), nil
	}
	blocks, _, err := parentInode.EachBlock(false)
	if err != nil {
		return 0, err
	}
	lower := strings.ToLower(token)
	for _, blkid := range blocks {
		db := NewDirectoryBlock(parentInode.sb, blkid)
		entries, err := db.EachEntry()
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			if e.IsTombstone() {
				continue
			}
			name, err := e.Name()
			if err != nil {
				continue
			}
			if strings.ToLower(string(name)) == lower {
				return e.Inode(), nil
			}
		}
	}
	return 0, &NoSuchFileOrDirectory{Token: token}
}

// NameForInode returns the name under which childID appears in
// parentInode's directory blocks, or "" if not found.
func NameForInode(parentInode *Inode, childID uint32) (string, error) {
	blocks, _, err := parentInode.EachBlock(false)
	if err != nil {
		return "", err
	}
	for _, blkid := range blocks {
		db := NewDirectoryBlock(parentInode.sb, blkid)
		entries, err := db.EachEntry()
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if e.Inode() == childID {
				name, err := e.Name()
				if err != nil {
					return "", err
				}
				return string(name), nil
			}
		}
	}
	return "", nil
}

// ParentInode returns the inode id that ino's ".." entry points to, or a
// *NoSuchFileOrDirectory error if ino has no directory blocks or no ".."
// entry.
func ParentInode(sb *Superblock, ino *Inode) (uint32, error) {
	return NameOrInode("..", ino)
}

// CurPath reconstructs a human-readable path from cur by repeatedly
// looking up ".." to find the parent and then searching the parent's
// directory blocks for an entry whose inode matches the child (spec.md
// §4.8). Stops at inode 2 (root) or, if a step's parent lacks a
// back-reference, falls back to a "<hex inode>" prefix. Grounded on
// original_source/pyutil/main.py's cur_path.
func CurPath(sb *Superblock, cur uint32) (string, error) {
	if cur == 2 {
		return "/", nil
	}
	var parts []string
	id := cur
	for id != 2 {
		ino, err := sb.Inode(id)
		if err != nil {
			return fallbackPath(id, parts), nil
		}
		parentID, err := ParentInode(sb, ino)
		if err != nil || parentID == 0 {
			return fallbackPath(id, parts), nil
		}
		parentIno, err := sb.Inode(parentID)
		if err != nil {
			return fallbackPath(id, parts), nil
		}
		name, err := NameForInode(parentIno, id)
		if err != nil || name == "" {
			return fallbackPath(id, parts), nil
		}
		parts = append([]string{name}, parts...)
		id = parentID
	}
	return "/" + strings.Join(parts, "/"), nil
}

func fallbackPath(id uint32, rest []string) string {
	prefix := fmt.Sprintf("<%#x>", id)
	if len(rest) == 0 {
		return prefix
	}
	return prefix + "/" + strings.Join(rest, "/")
}

// Session is the external, cross-invocation state the CLI persists between
// process runs of the same analysis (spec.md §9's "Mutable global cwd": a
// file is only a cross-invocation convenience, not part of the core
// contract). In a single long-lived process, CWD would simply be a field;
// here it is backed by a small file so that each `e2fsgrok <cmd>`
// invocation can pick up where the last one left off.
type Session struct {
	cwdFile string
}

// NewSession returns a Session whose cwd is persisted at cwdFile.
func NewSession(cwdFile string) *Session { return &Session{cwdFile: cwdFile} }

// CWD reads the persisted current working inode, defaulting to 2 (root) if
// no file exists yet.
func (s *Session) CWD() (uint32, error) {
	raw, err := os.ReadFile(s.cwdFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 2, nil
		}
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 32)
	if err != nil {
		return 2, nil
	}
	return uint32(n), nil
}

// SetCWD persists the current working inode, written atomically
// (write-temp + rename) so a crash mid-write can't corrupt it.
func (s *Session) SetCWD(id uint32) error {
	tmp := s.cwdFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(uint64(id), 10)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.cwdFile)
}
