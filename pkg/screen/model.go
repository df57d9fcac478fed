package screen

const (
	DefaultRows = 24
	DefaultCols = 80

	esc = 0x1b
	// maxParamBytes bounds a runaway control sequence.
	maxParamBytes = 32
)

type parserState uint8

const (
	stateNormal parserState = iota
	stateEscape
	stateCSI
)

// Buffer is a fixed character grid with a cursor, fed with raw terminal
// output. Parser state survives between feeds so a sequence split across
// reads renders the same as one delivered whole.
type Buffer struct {
	rows int
	cols int
	grid [][]byte

	row int
	col int

	state  parserState
	params []byte
}
