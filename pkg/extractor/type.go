package extractor

// PatternTrial is the outcome of trying a pattern against sample text.
type PatternTrial struct {
	// Matches holds every whole-match in order.
	Matches []string `json:"matches"`
	// Groups holds the capture groups of the first match. Named groups
	// keep their names, a pattern with only positional groups reports
	// "group1". A group that did not participate maps to nil.
	Groups map[string]*string `json:"groups"`
	// Extracted is what a job would record as its parsed result.
	Extracted *string `json:"extracted,omitempty"`
}
