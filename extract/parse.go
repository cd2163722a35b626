package extract

import (
	"regexp"
	"strings"

	"github.com/graphloom/graphloom/kg"
)

// Default fallbacks applied during record validation.
const (
	DefaultEntityType          = "CONCEPT"
	DefaultRelationDescription = "RELATED_TO"
	DefaultRelationWeight      = 1.0
)

// ParseOptions bounds the normalised output of the parser.
type ParseOptions struct {
	NameMaxLen int // Maximum entity name length (runes). Default 500.
	DescMaxLen int // Maximum description length (runes). Default 1000.
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.NameMaxLen <= 0 {
		o.NameMaxLen = 500
	}
	if o.DescMaxLen <= 0 {
		o.DescMaxLen = 1000
	}
	return o
}

// Result is the parsed output of one LLM response.
type Result struct {
	Entities  []kg.Entity
	Relations []kg.Relation
}

// ---------------------------------------------------------------------------
// Delimiter normalisation. Real LLM output corrupts the wire protocol
// in recurring ways; each pattern below maps a known corruption back
// to the canonical delimiter before any splitting happens.
// ---------------------------------------------------------------------------
var (
	// Literal or escaped placeholder text the model echoed verbatim:
	// {tuple_delimiter}, \{tuple_delimiter\}, any case.
	rePlaceholderTuple = regexp.MustCompile(`(?i)\\?\{tuple_delimiter\\?\}`)
	rePlaceholderDone  = regexp.MustCompile(`(?i)\\?\{completion_delimiter\\?\}`)

	// Completion variants: <|COMPLETE|>, <|complete|>, <| Complete |>.
	reDoneVariant = regexp.MustCompile(`(?i)<\s*\|\s*complete\s*\|\s*>`)

	// Hash variant <|#|>, with optional internal whitespace.
	reHashTuple = regexp.MustCompile(`<\s*\|\s*#\s*\|\s*>`)

	// Internal whitespace: < | >.
	reSpacedTuple = regexp.MustCompile(`<\s*\|\s*>`)

	// Partial forms left after truncated emission: <|# and #|>.
	rePartialTuple = regexp.MustCompile(`<\|#|#\|>`)

	// Doubled (or worse) delimiters collapse to one.
	reDoubledTuple = regexp.MustCompile(`(?:<\|>){2,}`)
)

// normalizeResponse maps every known delimiter corruption back to the
// canonical TupleDelimiter / CompletionDelimiter spellings.
func normalizeResponse(raw string) string {
	s := rePlaceholderDone.ReplaceAllString(raw, CompletionDelimiter)
	s = rePlaceholderTuple.ReplaceAllString(s, TupleDelimiter)
	s = reDoneVariant.ReplaceAllString(s, CompletionDelimiter)
	s = reHashTuple.ReplaceAllString(s, TupleDelimiter)
	s = reSpacedTuple.ReplaceAllString(s, TupleDelimiter)
	s = rePartialTuple.ReplaceAllString(s, TupleDelimiter)
	s = reDoubledTuple.ReplaceAllString(s, TupleDelimiter)
	return s
}

// splitEmbedded recovers records that the model glued onto one line.
// A line containing an internal "<|>entity<|>" or "<|>relation<|>" is
// split there and the dropped prefix restored.
func splitEmbedded(line string) []string {
	lower := strings.ToLower(line)
	for _, prefix := range []string{recordEntity, recordRelation} {
		marker := TupleDelimiter + prefix + TupleDelimiter
		if idx := strings.Index(lower, marker); idx > 0 {
			head := line[:idx]
			tail := prefix + TupleDelimiter + line[idx+len(marker):]
			return append(splitEmbedded(head), splitEmbedded(tail)...)
		}
	}
	return []string{line}
}

// Parse decodes one LLM response in the tuple-delimiter protocol.
// It never fails: malformed records are dropped and whatever parses
// cleanly is returned. Entity and relation names come back normalised
// (quotes stripped, whitespace collapsed, length-bounded).
func Parse(raw string, opts ParseOptions) Result {
	opts = opts.withDefaults()

	s := normalizeResponse(raw)

	// Stop at the completion sentinel; anything after it is noise.
	if idx := strings.Index(s, CompletionDelimiter); idx >= 0 {
		s = s[:idx]
	}

	var res Result
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, record := range splitEmbedded(line) {
			record = strings.TrimSpace(record)
			if record == "" {
				continue
			}
			parseRecord(record, opts, &res)
		}
	}
	return res
}

// parseRecord classifies and validates a single record, appending it
// to res when it survives validation.
func parseRecord(record string, opts ParseOptions, res *Result) {
	fields := strings.Split(record, TupleDelimiter)
	switch strings.ToLower(strings.TrimSpace(fields[0])) {
	case recordEntity:
		if len(fields) < 4 {
			return
		}
		name := kg.NormalizeName(fields[1], opts.NameMaxLen)
		if name == "" {
			return
		}
		typ := strings.TrimSpace(fields[2])
		if typ == "" {
			typ = DefaultEntityType
		}
		// Extra trailing fields fold into the description.
		desc := truncate(strings.TrimSpace(strings.Join(fields[3:], " ")), opts.DescMaxLen)
		res.Entities = append(res.Entities, kg.Entity{
			Name:        name,
			Type:        typ,
			Description: desc,
		})

	case recordRelation:
		if len(fields) < 5 {
			return
		}
		src := kg.NormalizeName(fields[1], opts.NameMaxLen)
		tgt := kg.NormalizeName(fields[2], opts.NameMaxLen)
		if src == "" || tgt == "" || src == tgt {
			return
		}
		desc := truncate(strings.TrimSpace(strings.Join(fields[4:], " ")), opts.DescMaxLen)
		if desc == "" {
			desc = DefaultRelationDescription
		}
		res.Relations = append(res.Relations, kg.Relation{
			SrcName:     src,
			TgtName:     tgt,
			Keywords:    strings.TrimSpace(fields[3]),
			Description: desc,
			Weight:      DefaultRelationWeight,
		})
	}
}

// truncate bounds s to max runes.
func truncate(s string, max int) string {
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}
