package answer

var suggestedPrompts = []string{
	"Compare TNET and ADP revenue growth",
	"Show TNET's profit margins over time",
	"Latest earnings call highlights for TNET",
	"Key risks mentioned in TNET's 10-K",
	"Compare employee productivity across competitors",
	"Show industry average metrics",
	"TNET's market position analysis",
	"Competitive advantages of TNET",
}

// SuggestedPrompts returns the example queries offered to users. The list does not
// depend on any query; callers get their own copy.
func SuggestedPrompts() []string {
	return append([]string(nil), suggestedPrompts...)
}
