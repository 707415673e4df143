// Package regscript reads timed register-write scripts. Each line holds one
// write:
//
//	<cycle> <address> <value>   # optional comment
//
// Numbers are decimal or 0x-prefixed hex. Cycles are absolute and must not
// go backwards.
package regscript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("regscript: syntax error")

// Write is one scheduled register write.
type Write struct {
	Cycle   int64
	Address uint32
	Value   uint32
	Line    int
}

func (w Write) String() string {
	return fmt.Sprintf("%d 0x%X 0x%X", w.Cycle, w.Address, w.Value)
}

// Parse reads a whole script.
func Parse(r io.Reader) ([]Write, error) {
	var writes []Write
	sc := bufio.NewScanner(r)
	line := 0
	var last int64
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d: want <cycle> <address> <value>, got %d fields", ErrSyntax, line, len(fields))
		}

		cycle, err := strconv.ParseInt(fields[0], 0, 64)
		if err != nil || cycle < 0 {
			return nil, fmt.Errorf("%w: line %d: bad cycle %q", ErrSyntax, line, fields[0])
		}
		if cycle < last {
			return nil, fmt.Errorf("%w: line %d: cycle %d before %d", ErrSyntax, line, cycle, last)
		}
		address, err := strconv.ParseUint(fields[1], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad address %q", ErrSyntax, line, fields[1])
		}
		value, err := strconv.ParseUint(fields[2], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad value %q", ErrSyntax, line, fields[2])
		}

		last = cycle
		writes = append(writes, Write{Cycle: cycle, Address: uint32(address), Value: uint32(value), Line: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("regscript: read: %w", err)
	}
	return writes, nil
}
