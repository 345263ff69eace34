package forecast

import (
	"math"
	"strconv"
	"strings"
)

// Markers delimiting the temperature tuple list in an FMI multipoint coverage document.
const (
	BlockStart = "<gml:doubleOrNilReasonTupleList>"
	BlockEnd   = "</gml:doubleOrNilReasonTupleList>"
)

// zeroLiteral is the only spelling of zero that survives extraction.
// Anything else that parses to zero is indistinguishable from garbage
// and is dropped with it.
// TODO: revisit once upstream documents are confirmed never to emit "0" or "-0.0".
const zeroLiteral = "0.0"

// Report describes how a document was extracted.
type Report struct {
	// Tokens is the number of non-empty tokens seen inside the block.
	Tokens int
	// Dropped lists the tokens that were rejected, in document order.
	Dropped []string
	// Err is ErrMarkerNotFound, ErrNoValidTokens, or nil.
	Err error
}

// Extract returns the readings held in doc. Both a missing block and a
// block without valid readings yield an empty Series; use ExtractWithReport
// to tell them apart.
func Extract(doc string) Series {
	s, _ := ExtractWithReport(doc)
	return s
}

// ExtractWithReport locates the data block in doc, splits it on single
// spaces and keeps every token that parses to a finite non-zero number,
// or that is literally "0.0".
func ExtractWithReport(doc string) (Series, Report) {
	var rep Report

	start := strings.Index(doc, BlockStart)
	end := strings.Index(doc, BlockEnd)
	if start == -1 || end == -1 {
		rep.Err = ErrMarkerNotFound
		return Series{}, rep
	}
	start += len(BlockStart)
	if end < start {
		rep.Err = ErrMarkerNotFound
		return Series{}, rep
	}

	data := strings.TrimSpace(doc[start:end])
	series := Series{}

	for len(data) > 0 {
		var tok string
		if i := strings.IndexByte(data, ' '); i != -1 {
			tok, data = data[:i], data[i+1:]
		} else {
			tok, data = data, ""
		}

		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		rep.Tokens++

		v, ok := parseToken(tok)
		if !ok {
			rep.Dropped = append(rep.Dropped, tok)
			continue
		}
		series = append(series, Reading(v))
	}

	if len(series) == 0 {
		rep.Err = ErrNoValidTokens
	}
	return series, rep
}

// parseToken treats unparseable text as zero, so it falls under the same
// literal check as a real zero.
func parseToken(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		v = 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v == 0 && tok != zeroLiteral {
		return 0, false
	}
	return v, true
}
