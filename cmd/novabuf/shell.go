package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/tuannm99/novabuf/internal/bufferpool"
	"github.com/tuannm99/novabuf/internal/storage"
)

var errUsage = errors.New("usage error")

const helpText = `commands:
  fetch N             pin page N
  unpin N [dirty]     release one pin on page N
  alloc               allocate and pin a new page
  dispose N           drop page N from the pool and the file
  write N OFF TEXT    copy TEXT into pinned page N at OFF
  read N OFF LEN      print LEN bytes of pinned page N at OFF
  flush               write back and drop every page of the file
  flushall            write back every dirty page
  stats | dump | help | quit`

// shell drives one pool/file pair from text commands. Pins taken by
// fetch/alloc are held until unpin or dispose.
type shell struct {
	pool bufferpool.Pool
	file storage.File
	out  io.Writer
	held map[storage.PageNo][]*bufferpool.PageGuard
}

func newShell(pool bufferpool.Pool, file storage.File, out io.Writer) *shell {
	return &shell{
		pool: pool,
		file: file,
		out:  out,
		held: make(map[storage.PageNo][]*bufferpool.PageGuard),
	}
}

func (s *shell) exec(line string) (quit bool, err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}

	switch cmd := strings.ToLower(args[0]); cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "fetch":
		return false, s.fetch(args[1:])
	case "unpin":
		return false, s.unpin(args[1:])
	case "alloc":
		pageNo, g, err := s.pool.AllocPage(s.file)
		if err != nil {
			return false, err
		}
		s.hold(g)
		fmt.Fprintf(s.out, "allocated page %d in frame %d\n", pageNo, g.FrameNo())
	case "dispose":
		return false, s.dispose(args[1:])
	case "write":
		return false, s.write(args[1:])
	case "read":
		return false, s.read(args[1:])
	case "flush":
		if err := s.pool.FlushFile(s.file); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "flushed")
	case "flushall":
		if err := s.pool.FlushAll(); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "flushed all")
	case "stats":
		st := s.pool.Stats()
		fmt.Fprintf(s.out, "capacity=%d valid=%d pinned=%d dirty=%d indexed=%d\n",
			st.Capacity, st.Valid, st.Pinned, st.Dirty, st.Indexed)
	case "dump":
		return false, s.pool.Dump(s.out)
	default:
		return false, fmt.Errorf("%w: unknown command %q (try help)", errUsage, cmd)
	}
	return false, nil
}

func (s *shell) hold(g *bufferpool.PageGuard) {
	s.held[g.PageNo()] = append(s.held[g.PageNo()], g)
}

// guard returns the most recent pin held on pageNo, or nil.
func (s *shell) guard(pageNo storage.PageNo) *bufferpool.PageGuard {
	gs := s.held[pageNo]
	if len(gs) == 0 {
		return nil
	}
	return gs[len(gs)-1]
}

func parsePageNo(arg string) (storage.PageNo, error) {
	n, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return storage.InvalidPageNo, fmt.Errorf("%w: bad page number %q", errUsage, arg)
	}
	return storage.PageNo(n), nil
}

func (s *shell) fetch(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: fetch N", errUsage)
	}
	pageNo, err := parsePageNo(args[0])
	if err != nil {
		return err
	}
	g, err := s.pool.FetchPage(s.file, pageNo)
	if err != nil {
		return err
	}
	s.hold(g)
	fmt.Fprintf(s.out, "page %d pinned in frame %d\n", pageNo, g.FrameNo())
	return nil
}

func (s *shell) unpin(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: unpin N [dirty]", errUsage)
	}
	pageNo, err := parsePageNo(args[0])
	if err != nil {
		return err
	}
	dirty := len(args) == 2 && args[1] == "dirty"

	g := s.guard(pageNo)
	if g == nil {
		// No pin held here; let the pool report the error.
		return s.pool.UnpinPage(s.file, pageNo, dirty)
	}
	s.held[pageNo] = s.held[pageNo][:len(s.held[pageNo])-1]
	if dirty {
		g.MarkDirty()
	}
	if err := g.Release(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "page %d unpinned\n", pageNo)
	return nil
}

func (s *shell) dispose(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: dispose N", errUsage)
	}
	pageNo, err := parsePageNo(args[0])
	if err != nil {
		return err
	}
	if err := s.pool.DisposePage(s.file, pageNo); err != nil {
		return err
	}
	delete(s.held, pageNo)
	fmt.Fprintf(s.out, "page %d disposed\n", pageNo)
	return nil
}

func (s *shell) pinned(arg string) (*bufferpool.PageGuard, error) {
	pageNo, err := parsePageNo(arg)
	if err != nil {
		return nil, err
	}
	g := s.guard(pageNo)
	if g == nil {
		return nil, fmt.Errorf("%w: page %d is not pinned here (fetch it first)", errUsage, pageNo)
	}
	return g, nil
}

// parseRange parses an offset for n bytes inside one page. n is
// non-negative; the bound is checked without computing off+n.
func parseRange(offArg string, n int) (int, error) {
	off, err := strconv.Atoi(offArg)
	if err != nil || off < 0 || n > storage.PageSize || off > storage.PageSize-n {
		return 0, fmt.Errorf("%w: bad offset %q", errUsage, offArg)
	}
	return off, nil
}

func (s *shell) write(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: write N OFF TEXT", errUsage)
	}
	g, err := s.pinned(args[0])
	if err != nil {
		return err
	}
	text := strings.Join(args[2:], " ")
	off, err := parseRange(args[1], len(text))
	if err != nil {
		return err
	}
	copy(g.Data()[off:], text)
	g.MarkDirty()
	fmt.Fprintf(s.out, "wrote %d bytes to page %d\n", len(text), g.PageNo())
	return nil
}

func (s *shell) read(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: read N OFF LEN", errUsage)
	}
	g, err := s.pinned(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n < 0 {
		return fmt.Errorf("%w: bad length %q", errUsage, args[2])
	}
	off, err := parseRange(args[1], n)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%q\n", g.Data()[off:off+n])
	return nil
}

// releaseAll drops every pin the shell still holds.
func (s *shell) releaseAll() error {
	var err error
	for pageNo, gs := range s.held {
		for _, g := range gs {
			err = multierr.Append(err, g.Release())
		}
		delete(s.held, pageNo)
	}
	return err
}
