// Package extract turns chunk text into entities and relations via an
// LLM, using the tuple-delimiter wire protocol with a corruption-
// tolerant parser and optional iterative gleaning.
package extract

import (
	"strings"

	"github.com/graphloom/graphloom/kg"
)

// Canonical wire-protocol delimiters. Emission is bit-exact; parsing
// tolerates the corrupted variants handled in parse.go.
const (
	TupleDelimiter      = "<|>"
	CompletionDelimiter = "<|COMPLETE|>"
)

// Record prefixes, matched case-insensitively on parse.
const (
	recordEntity   = "entity"
	recordRelation = "relation"
)

// Format renders entities and relations in the tuple-delimiter wire
// format, one record per line, terminated by the completion sentinel.
// This is the reference emission the prompts instruct the LLM to
// produce, and the formatter the parser round-trips against.
func Format(entities []kg.Entity, relations []kg.Relation) string {
	var b strings.Builder
	for _, e := range entities {
		b.WriteString(recordEntity)
		b.WriteString(TupleDelimiter)
		b.WriteString(e.Name)
		b.WriteString(TupleDelimiter)
		b.WriteString(e.Type)
		b.WriteString(TupleDelimiter)
		b.WriteString(e.Description)
		b.WriteByte('\n')
	}
	for _, r := range relations {
		b.WriteString(recordRelation)
		b.WriteString(TupleDelimiter)
		b.WriteString(r.SrcName)
		b.WriteString(TupleDelimiter)
		b.WriteString(r.TgtName)
		b.WriteString(TupleDelimiter)
		b.WriteString(r.Keywords)
		b.WriteString(TupleDelimiter)
		b.WriteString(r.Description)
		b.WriteByte('\n')
	}
	b.WriteString(CompletionDelimiter)
	return b.String()
}
