package analyzer

import (
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// pipeline is a bleve analysis chain run directly on query text, without an index.
type pipeline struct {
	tokenizer analysis.Tokenizer
	filters   []analysis.TokenFilter
}

// newPipeline builds tokenizer -> possessive -> lowercase -> alnum split [-> stop] -> porter.
// keep lists words that must survive stop-word removal.
func newPipeline(withStop bool, keep []string) (*pipeline, error) {
	filters := []analysis.TokenFilter{
		en.NewPossessiveFilter(),
		lowercase.NewLowerCaseFilter(),
		alnumSplitFilter{},
	}
	if withStop {
		stopWords, err := en.TokenMapConstructor(nil, nil)
		if err != nil {
			return nil, err
		}
		for _, w := range keep {
			delete(stopWords, w)
		}
		filters = append(filters, stop.NewStopTokensFilter(stopWords))
	}
	filters = append(filters, porter.NewPorterStemmer())
	return &pipeline{tokenizer: bleveunicode.NewUnicodeTokenizer(), filters: filters}, nil
}

func (p *pipeline) terms(text string) []string {
	stream := p.tokenizer.Tokenize([]byte(text))
	for _, f := range p.filters {
		stream = f.Filter(stream)
	}
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) > 0 {
			out = append(out, string(tok.Term))
		}
	}
	return out
}

// alnumSplitFilter splits tokens on any rune that is neither a letter nor a digit,
// so "10-k" and "3.5" become separate alphanumeric runs.
type alnumSplitFilter struct{}

func (alnumSplitFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	pos := 1
	for _, tok := range input {
		start := -1
		for i := 0; i < len(tok.Term); {
			r, size := utf8.DecodeRune(tok.Term[i:])
			alnum := unicode.IsLetter(r) || unicode.IsDigit(r)
			if alnum && start < 0 {
				start = i
			}
			if !alnum && start >= 0 {
				out = append(out, splitToken(tok, start, i, pos))
				pos++
				start = -1
			}
			i += size
		}
		if start >= 0 {
			out = append(out, splitToken(tok, start, len(tok.Term), pos))
			pos++
		}
	}
	return out
}

func splitToken(tok *analysis.Token, start, end, pos int) *analysis.Token {
	term := make([]byte, end-start)
	copy(term, tok.Term[start:end])
	return &analysis.Token{
		Term:     term,
		Start:    tok.Start + start,
		End:      tok.Start + end,
		Position: pos,
		Type:     analysis.AlphaNumeric,
	}
}
