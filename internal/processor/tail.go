package processor

import (
	"bufio"
	"fmt"
	"os"
)

// taggedLine pairs a complete line with the byte offset immediately
// after it, so the caller can persist a crash-safe offset at any point
// within a batch of lines read in one tick, not just at the end.
type taggedLine struct {
	text      string
	endOffset int64
}

// readLines opens the hot buffer, seeks to offset, and returns complete
// newline-terminated lines only; a partial trailing line is left
// unread so the next tick can pick it up once it is complete
// (spec.md §4.2.1).
//
// Rotation detection: if the buffer's current size is strictly less
// than offset, the buffer was truncated out from under the processor
// (external log rotation); the caller is told via rotated=true and
// should restart consumption at 0.
func readLines(path string, offset int64) (lines []taggedLine, rotated bool, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("processor: open hot buffer: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("processor: stat hot buffer: %w", err)
	}

	if info.Size() < offset {
		offset = 0
		rotated = true
	}

	if _, err := f.Seek(offset, 0); err != nil {
		return nil, rotated, fmt.Errorf("processor: seek hot buffer: %w", err)
	}

	r := bufio.NewReader(f)
	cur := offset
	for {
		line, readErr := r.ReadString('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			cur += int64(len(line))
			lines = append(lines, taggedLine{text: line[:len(line)-1], endOffset: cur})
		}
		if readErr != nil {
			// EOF with a non-empty partial line: leave it for next tick by
			// not advancing cur past the last complete line.
			break
		}
	}

	return lines, rotated, nil
}
