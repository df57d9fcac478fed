package screen

import (
	"bytes"
	"strconv"
	"strings"
)

// NewBuffer creates a blank rows x cols screen. Non-positive sizes fall back
// to the 24x80 default.
func NewBuffer(rows, cols int) *Buffer {
	if rows < 1 {
		rows = DefaultRows
	}
	if cols < 1 {
		cols = DefaultCols
	}

	b := &Buffer{
		rows:   rows,
		cols:   cols,
		grid:   make([][]byte, rows),
		params: make([]byte, 0, maxParamBytes),
	}
	for i := range b.grid {
		b.grid[i] = make([]byte, cols)
	}
	b.Clear()
	return b
}

func (b *Buffer) Size() (rows, cols int) {
	return b.rows, b.cols
}

func (b *Buffer) Cursor() (row, col int) {
	return b.row, b.col
}

// Clear blanks every cell and homes the cursor. Parser state is untouched.
func (b *Buffer) Clear() {
	for _, line := range b.grid {
		for i := range line {
			line[i] = ' '
		}
	}
	b.row, b.col = 0, 0
}

// Reset returns the buffer to its freshly created state.
func (b *Buffer) Reset() {
	b.Clear()
	b.state = stateNormal
	b.params = b.params[:0]
}

func (b *Buffer) FeedString(s string) {
	b.Feed([]byte(s))
}

// Feed interprets data one byte at a time.
func (b *Buffer) Feed(data []byte) {
	for _, c := range data {
		switch b.state {
		case stateNormal:
			b.normal(c)
		case stateEscape:
			b.escape(c)
		case stateCSI:
			b.csi(c)
		}
	}
}

func (b *Buffer) normal(c byte) {
	switch {
	case c == esc:
		b.state = stateEscape
	case c == '\r':
		b.col = 0
	case c == '\n':
		b.lineFeed()
	case c >= 0x20 && c <= 0x7e:
		b.put(c)
	}
}

func (b *Buffer) escape(c byte) {
	switch c {
	case '[':
		b.params = b.params[:0]
		b.state = stateCSI
	case 'c':
		b.Clear()
		b.state = stateNormal
	case esc:
		// a second ESC restarts the sequence
	default:
		// intermediates such as the '(' of a charset designation
		if c >= 0x20 && c <= 0x2f {
			return
		}
		b.state = stateNormal
	}
}

func (b *Buffer) csi(c byte) {
	switch {
	case c >= 0x40 && c <= 0x7e:
		b.dispatch(c)
		b.params = b.params[:0]
		b.state = stateNormal
	case c >= 0x20 && c <= 0x3f:
		if len(b.params) < maxParamBytes {
			b.params = append(b.params, c)
		}
	case c == esc:
		b.state = stateEscape
	}
}

func (b *Buffer) dispatch(final byte) {
	switch final {
	case 'J':
		if b.param(0, 0) == 2 {
			b.Clear()
		}
	case 'H', 'f':
		b.row = clamp(b.param(0, 1)-1, 0, b.rows-1)
		b.col = clamp(b.param(1, 1)-1, 0, b.cols-1)
	}
}

// param returns the i-th numeric parameter or def when absent or zero.
func (b *Buffer) param(i, def int) int {
	fields := bytes.Split(b.params, []byte{';'})
	if i >= len(fields) {
		return def
	}
	n, err := strconv.Atoi(string(fields[i]))
	if err != nil || n == 0 {
		return def
	}
	return n
}

func (b *Buffer) lineFeed() {
	b.row = min(b.rows-1, b.row+1)
	b.col = 0
}

func (b *Buffer) put(c byte) {
	if b.col >= b.cols {
		b.lineFeed()
	}
	b.grid[b.row][b.col] = c
	b.col++
}

// Text renders the grid with trailing spaces trimmed from each row.
func (b *Buffer) Text() string {
	lines := make([]string, b.rows)
	for i, line := range b.grid {
		lines[i] = strings.TrimRight(string(line), " ")
	}
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
