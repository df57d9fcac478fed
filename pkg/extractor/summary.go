package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

// summaryHeaderWords mark the column header row of a group summary.
var summaryHeaderWords = [...]string{"Point", "Value"}

// <number> <name> <two or more spaces> <value>
var summaryRowRe = regexp.MustCompile(`^\s*(\d+)\s+([A-Za-z0-9 \-_/]+?)\s{2,}(.+)$`)

// ParseGroupSummary turns a rendered group summary screen into rows. Blank
// lines and the column header are skipped; any other line that is not a
// point row is kept with a nil point number.
func ParseGroupSummary(screenText string) []types.ParsedPoint {
	rows := []types.ParsedPoint{}
	for _, line := range strings.Split(screenText, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if m := summaryRowRe.FindStringSubmatch(line); m != nil {
			number, err := strconv.Atoi(m[1])
			if err == nil {
				rows = append(rows, types.ParsedPoint{
					PointNumber: &number,
					Name:        strings.TrimSpace(m[2]),
					Value:       strings.TrimSpace(m[3]),
					RawLine:     line,
				})
				continue
			}
		}

		if isSummaryHeader(line) {
			continue
		}
		rows = append(rows, types.ParsedPoint{RawLine: line})
	}
	return rows
}

func isSummaryHeader(line string) bool {
	for _, word := range summaryHeaderWords {
		if !strings.Contains(line, word) {
			return false
		}
	}
	return true
}

// ParsedRows returns only the rows that carried a point number.
func ParsedRows(rows []types.ParsedPoint) []types.ParsedPoint {
	out := make([]types.ParsedPoint, 0, len(rows))
	for _, row := range rows {
		if row.IsParsed() {
			out = append(out, row)
		}
	}
	return out
}
