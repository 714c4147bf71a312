package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aaron-fl/e2fsgrok/e2fs"
	"github.com/aaron-fl/e2fsgrok/util"
	times "gopkg.in/djherbis/times.v1"

	"github.com/sirupsen/logrus"
)

// session bundles the per-invocation state every command needs: the open
// image, its superblock, and the persisted cwd (spec.md §9's "mutable
// global cwd" — each invocation is a fresh process).
type session struct {
	img     *e2fs.Image
	sb      *e2fs.Superblock
	nav     *e2fs.Session
	cacheAt string
}

func openSession(fname string, readOnly bool) (*session, error) {
	img, err := e2fs.OpenPath(fname, readOnly)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", fname, err)
	}
	sb := e2fs.NewSuperblock(img)
	if errs := sb.Validate(true); len(errs) > 0 {
		for _, e := range errs {
			logrus.WithField("fname", fname).Warn(e)
		}
	}
	cacheBase := fname + ".e2fsgrok"
	return &session{
		img:     img,
		sb:      sb,
		nav:     e2fs.NewSession(cacheBase + ".cwd"),
		cacheAt: cacheBase,
	}, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	fname := os.Getenv("IMG_FILE")
	fset := flag.NewFlagSet(cmd, flag.ExitOnError)
	fnameFlag := fset.String("fname", "", "path to the image or block device (overrides IMG_FILE)")

	// Commands that mutate the image open read-write; everything else is
	// read-only (spec.md §6).
	writable := cmd == "change_block" || cmd == "change_blkcount" || cmd == "change_dir_entry"

	switch cmd {
	case "superblocks":
		limit := fset.Int("limit", 0, "max backups to show, 0 = all")
		parse(fset, args)
		imgPath := resolveFname(fname, *fnameFlag)
		withSession(imgPath, writable, func(s *session) error {
			return cmdSuperblocks(s, imgPath, *limit)
		})
	case "descriptors":
		limit := fset.Int("limit", 0, "max groups to show, 0 = all")
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdDescriptors(s, *limit)
		})
	case "blkgrp":
		free := fset.Bool("free", false, "list free block ids")
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdBlkgrp(s, fset.Arg(0), *free)
		})
	case "root_inodes":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdRootInodes(s)
		})
	case "inode":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdInode(s, fset.Arg(0))
		})
	case "blk_data":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdBlkData(s, fset.Arg(0))
		})
	case "blkls":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdBlkls(s, fset.Arg(0))
		})
	case "ls":
		depth := fset.Int("depth", 1, "recursion depth, 0 = unbounded")
		keepGoing := fset.Bool("keep-going", false, "collect every finding instead of stopping at the first")
		parent := fset.Uint("parent", 0, "parent inode to list instead of cwd, 0 = cwd")
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdLs(s, fset.Arg(0), *depth, *keepGoing, uint32(*parent))
		})
	case "cat":
		binary := fset.Bool("binary", false, "treat the file body as fixed-size binary lines instead of newline-split text")
		size := fset.Int64("size", -1, "max bytes to print (also the chunk size in binary mode), -1 = unbounded")
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdCat(s, fset.Arg(0), *binary, *size)
		})
	case "cp":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdCp(s, fset.Arg(0), fset.Arg(1))
		})
	case "cd":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdCd(s, fset.Arg(0))
		})
	case "analyze":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdAnalyze(s)
		})
	case "search":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdSearch(s, fset.Arg(0))
		})
	case "isearch":
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdISearch(s, fset.Arg(0))
		})
	case "change_block":
		yes := fset.Bool("yes", false, "skip the confirmation prompt")
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdChangeBlock(s, fset.Arg(0), fset.Arg(1), fset.Arg(2), *yes)
		})
	case "change_blkcount":
		yes := fset.Bool("yes", false, "skip the confirmation prompt")
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdChangeBlkcount(s, fset.Arg(0), *yes)
		})
	case "change_dir_entry":
		yes := fset.Bool("yes", false, "skip the confirmation prompt")
		parse(fset, args)
		withSession(resolveFname(fname, *fnameFlag), writable, func(s *session) error {
			return cmdChangeDirEntry(s, fset.Arg(0), fset.Arg(1), fset.Arg(2), *yes)
		})
	default:
		usage()
		os.Exit(2)
	}
}

func parse(fset *flag.FlagSet, args []string) {
	if err := fset.Parse(args); err != nil {
		os.Exit(2)
	}
}

func resolveFname(envFname, flagFname string) string {
	if flagFname != "" {
		return flagFname
	}
	return envFname
}

func withSession(fname string, writable bool, fn func(*session) error) {
	if fname == "" {
		fmt.Fprintln(os.Stderr, "no image given: set IMG_FILE or pass --fname")
		os.Exit(1)
	}
	s, err := openSession(fname, !writable)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer s.img.Close()
	if err := fn(s); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: e2fsgrok <command> [args...]

commands:
  superblocks {--limit}
  descriptors {--limit}
  blkgrp <bg> {--free}
  root_inodes
  inode <name-or-id>
  blk_data <blkid>
  blkls <blkid>
  ls <root=cwd> {--depth, --keep-going, --parent}
  cat <name-or-id> {--binary, --size}
  cp <name-or-id> <dest>
  cd <name-or-id>
  analyze
  search <regex>
  isearch <inode>
  change_block <inode> <index> <blkid> {--yes}
  change_blkcount <nblks> {--yes}
  change_dir_entry <blkid> <name> <inode> {--yes}

IMG_FILE supplies the image path when --fname is absent.`)
}

func confirmPrompt(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

func confirmFor(yes bool) e2fs.Confirm {
	if yes {
		return func(string) bool { return true }
	}
	return confirmPrompt
}

func cmdSuperblocks(s *session, fname string, limit int) error {
	fmt.Printf("primary: %s\n", describeSuperblock(s.sb))
	if fi, err := times.Stat(fname); err == nil {
		fmt.Printf("image file mtime: %s\n", fi.ModTime())
		if fi.HasBirthTime() {
			fmt.Printf("image file birth time: %s\n", fi.BirthTime())
		}
	}
	backups, err := s.sb.SuperBgs()
	if err != nil {
		return err
	}
	for i, b := range backups {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Printf("bg#%d backup: %s\n", b.BG.BG(), describeSuperblock(b.SB))
	}
	return nil
}

func describeSuperblock(sb *e2fs.Superblock) string {
	name := sb.Name()
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("%q state=%s blocks=%d block_size=%d bg_count=%d",
		name, sb.PrettyVal("state"), sb.BlocksCountLo(), sb.BlockSize(), sb.BGCount())
}

func cmdDescriptors(s *session, limit int) error {
	buckets, err := s.sb.AllBlockDescriptors()
	if err != nil {
		return err
	}
	shown := 0
	for bg := uint32(0); bg < s.sb.BGCount(); bg++ {
		if limit > 0 && shown >= limit {
			break
		}
		for _, b := range buckets[bg] {
			fmt.Printf("bg#%d: copies=%d sources=%v\n", bg, b.Copies, b.Sources)
		}
		shown++
	}
	return nil
}

func cmdBlkgrp(s *session, bgArg string, free bool) error {
	bg, err := strconv.ParseUint(bgArg, 10, 32)
	if err != nil {
		return fmt.Errorf("bad block group %q: %w", bgArg, err)
	}
	g, err := s.sb.Blkgrp(uint32(bg))
	if err != nil {
		return err
	}
	fmt.Printf("bg#%d is_super=%v bitmap_offset=%d inode_table_blkid=%d\n",
		g.BG(), g.IsSuper(), g.BitmapOffset(), g.InodeTableBlkid())
	if free {
		for _, blkid := range g.EachDataBlkid() {
			idx := int(blkid - g.BG()*s.sb.BlocksPerGroup())
			isFree, err := g.BlkidxFree(idx)
			if err != nil {
				return err
			}
			if isFree {
				fmt.Println(blkid)
			}
		}
	}
	return nil
}

func cmdRootInodes(s *session) error {
	for id := uint32(1); id <= 11; id++ {
		ino, err := s.sb.Inode(id)
		if err != nil {
			fmt.Printf("inode %d: %s\n", id, err)
			continue
		}
		printInode(ino)
	}
	return nil
}

func cmdInode(s *session, token string) error {
	id, err := resolveToken(s, token)
	if err != nil {
		return err
	}
	ino, err := s.sb.Inode(id)
	if err != nil {
		return err
	}
	printInode(ino)
	return nil
}

func printInode(ino *e2fs.Inode) {
	fmt.Printf("inode %d: mode=%s size=%d links=%d atime=%s mtime=%s\n",
		ino.ID(), ino.PrettyMode(), ino.SizeLo(), ino.MustUint("links_count"),
		ino.PrettyVal("atime"), ino.PrettyVal("mtime"))
	for _, e := range ino.Errors() {
		fmt.Printf("  ! %s\n", e)
	}
}

func cmdBlkData(s *session, blkidArg string) error {
	blkid, err := strconv.ParseUint(blkidArg, 10, 32)
	if err != nil {
		return err
	}
	raw, err := s.img.ReadExact(int64(blkid)*int64(s.sb.BlockSize()), s.sb.BlockSize())
	if err != nil {
		return err
	}
	fmt.Print(util.DumpByteSlice(raw, 16, true, true, false, nil))
	return nil
}

func cmdBlkls(s *session, blkidArg string) error {
	blkid, err := strconv.ParseUint(blkidArg, 10, 32)
	if err != nil {
		return err
	}
	db := e2fs.NewDirectoryBlock(s.sb, uint32(blkid))
	entries, err := db.EachEntry()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		name, err := e.Name()
		if err != nil {
			fmt.Printf("  ! %s\n", err)
			continue
		}
		fmt.Printf("%8d %s\n", e.Inode(), name)
	}
	return nil
}

func cmdLs(s *session, rootArg string, depth int, keepGoing bool, parent uint32) error {
	root := parent
	if root == 0 {
		cwd, err := s.nav.CWD()
		if err != nil {
			return err
		}
		root = cwd
	}
	if rootArg != "" {
		ino, err := s.sb.Inode(root)
		if err != nil {
			return err
		}
		id, err := e2fs.NameOrInode(rootArg, ino)
		if err != nil {
			return err
		}
		root = id
	}
	return lsRecurse(s, root, "", depth, keepGoing)
}

func lsRecurse(s *session, id uint32, prefix string, depth int, keepGoing bool) error {
	ino, err := s.sb.Inode(id)
	if err != nil {
		if keepGoing {
			fmt.Printf("%s! %s\n", prefix, err)
			return nil
		}
		return err
	}
	if !ino.IsDir() {
		return fmt.Errorf("inode %d is not a directory", id)
	}
	blocks, _, err := ino.EachBlock(false)
	if err != nil {
		return err
	}
	for _, blkid := range blocks {
		db := e2fs.NewDirectoryBlock(s.sb, blkid)
		errs, err := db.Validate(keepGoing, false)
		if err != nil {
			return err
		}
		for _, e := range errs {
			fmt.Printf("%s! %s\n", prefix, e)
		}
		entries, err := db.EachEntry()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsTombstone() {
				continue
			}
			name, err := e.Name()
			if err != nil {
				if keepGoing {
					fmt.Printf("%s! %s\n", prefix, err)
					continue
				}
				return err
			}
			fmt.Printf("%s%8d %s\n", prefix, e.Inode(), name)
			if depth != 1 && string(name) != "." && string(name) != ".." {
				nextDepth := depth - 1
				if depth == 0 {
					nextDepth = 0
				}
				child, err := s.sb.Inode(e.Inode())
				if err == nil && child.IsDir() {
					if err := lsRecurse(s, e.Inode(), prefix+"  ", nextDepth, keepGoing); err != nil && !keepGoing {
						return err
					}
				}
			}
		}
	}
	return nil
}

func cmdCat(s *session, token string, binary bool, size int64) error {
	id, err := resolveToken(s, token)
	if err != nil {
		return err
	}
	ino, err := s.sb.Inode(id)
	if err != nil {
		return err
	}
	lineSize := int(size)
	if lineSize <= 0 {
		lineSize = s.sb.BlockSize()
	}
	lines, err := ino.EachLine(lineSize, !binary, size)
	if err != nil {
		return err
	}
	for _, l := range lines {
		os.Stdout.Write(l)
	}
	return nil
}

func cmdCp(s *session, token, dest string) error {
	id, err := resolveToken(s, token)
	if err != nil {
		return err
	}
	ino, err := s.sb.Inode(id)
	if err != nil {
		return err
	}
	lines, err := ino.EachLine(s.sb.BlockSize(), false, int64(ino.SizeLo()))
	if err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.Write(l); err != nil {
			return err
		}
	}
	attrs, err := ino.ReadXAttrBlock()
	if err != nil {
		logrus.WithError(err).Warn("could not read extended attributes")
		return nil
	}
	if len(attrs) > 0 {
		if err := e2fs.ReplayXAttrs(dest, attrs); err != nil {
			logrus.WithError(err).Warn("could not replay extended attributes")
		}
	}
	return nil
}

func cmdCd(s *session, token string) error {
	id, err := resolveToken(s, token)
	if err != nil {
		return err
	}
	ino, err := s.sb.Inode(id)
	if err != nil {
		return err
	}
	if !ino.IsDir() {
		return fmt.Errorf("inode %d is not a directory", id)
	}
	return s.nav.SetCWD(id)
}

func resolveToken(s *session, token string) (uint32, error) {
	cwd, err := s.nav.CWD()
	if err != nil {
		return 0, err
	}
	if token == "" {
		return cwd, nil
	}
	cwdIno, err := s.sb.Inode(cwd)
	if err != nil {
		return 0, err
	}
	return e2fs.NameOrInode(token, cwdIno)
}

func cmdAnalyze(s *session) error {
	an := e2fs.NewAnalyzer(s.sb, s.cacheAt+".analysis")
	if err := an.Resume(); err != nil {
		return err
	}
	return an.Run(func(p e2fs.AnalyzerProgress) {
		fmt.Fprintf(os.Stderr, "\rblock group %d/%d", p.BGDone, p.BGTotal)
	})
}

func cmdSearch(s *session, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	an := e2fs.NewAnalyzer(s.sb, s.cacheAt+".analysis")
	if err := an.Resume(); err != nil {
		return err
	}
	hits, err := e2fs.Search(s.sb, an, filepath.Dir(s.cacheAt), re)
	if err != nil {
		return err
	}
	for _, h := range hits {
		fmt.Printf("%8d %s (in dir block %d, parent inode %d)\n", h.ChildInode, h.Name, h.DirBlock, h.ParentInode)
	}
	return nil
}

func cmdISearch(s *session, inodeArg string) error {
	id, err := strconv.ParseUint(inodeArg, 10, 32)
	if err != nil {
		return err
	}
	an := e2fs.NewAnalyzer(s.sb, s.cacheAt+".analysis")
	if err := an.Resume(); err != nil {
		return err
	}
	hits, err := e2fs.ISearch(s.sb, an, filepath.Dir(s.cacheAt), uint32(id))
	if err != nil {
		return err
	}
	for _, h := range hits {
		fmt.Printf("%8d %s (in dir block %d, parent inode %d)\n", h.ChildInode, h.Name, h.DirBlock, h.ParentInode)
	}
	return nil
}

func cmdChangeBlock(s *session, inodeArg, indexArg, blkidArg string, yes bool) error {
	id, err := strconv.ParseUint(inodeArg, 10, 32)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(indexArg)
	if err != nil {
		return err
	}
	blkid, err := strconv.ParseUint(blkidArg, 10, 32)
	if err != nil {
		return err
	}
	ino, err := s.sb.Inode(uint32(id))
	if err != nil {
		return err
	}
	return e2fs.ChangeBlock(ino, index, uint32(blkid), confirmFor(yes))
}

func cmdChangeBlkcount(s *session, nArg string, yes bool) error {
	n, err := strconv.ParseUint(nArg, 10, 32)
	if err != nil {
		return err
	}
	cwd, err := s.nav.CWD()
	if err != nil {
		return err
	}
	ino, err := s.sb.Inode(cwd)
	if err != nil {
		return err
	}
	return e2fs.ChangeBlkcount(ino, uint32(n), confirmFor(yes))
}

func cmdChangeDirEntry(s *session, blkidArg, name, inodeArg string, yes bool) error {
	blkid, err := strconv.ParseUint(blkidArg, 10, 32)
	if err != nil {
		return err
	}
	newInode, err := strconv.ParseUint(inodeArg, 10, 32)
	if err != nil {
		return err
	}
	db := e2fs.NewDirectoryBlock(s.sb, uint32(blkid))
	entries, err := db.EachEntry()
	if err != nil {
		return err
	}
	for _, e := range entries {
		entryName, err := e.Name()
		if err != nil {
			continue
		}
		if string(entryName) == name {
			return e2fs.ChangeDirEntry(e, uint32(newInode), confirmFor(yes))
		}
	}
	return &e2fs.NoSuchFileOrDirectory{Token: name}
}
