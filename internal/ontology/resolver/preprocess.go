// Package resolver implements the Entity Resolver (E, spec.md §4.10): a
// pure deterministic pipeline over a batch of Candidate Entities —
// preprocess, block, score, decide, union-find. It is original code built
// directly from spec.md's pipeline description (no pack repo implements
// entity resolution); union-find follows spec.md §9's REDESIGN FLAG asking
// for an iterative, not recursive, implementation.
package resolver

import (
	"regexp"
	"strings"
	"time"

	"github.com/wardenai/warden/internal/ontology/model"
)

var honorificsAndSuffixes = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"inc": true, "llc": true, "ltd": true, "corp": true, "co": true,
}

var nameTokenRE = regexp.MustCompile(`[a-zA-Z0-9']+`)

// normalizeName lowercases and strips honorific/suffix tokens.
func normalizeName(name string) string {
	tokens := nameTokenRE.FindAllString(strings.ToLower(name), -1)
	out := tokens[:0:0]
	for _, tok := range tokens {
		if honorificsAndSuffixes[strings.TrimRight(tok, ".")] {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

var streetAbbrevs = map[string]string{
	"st": "street", "ave": "avenue", "rd": "road", "blvd": "boulevard",
	"dr": "drive", "ln": "lane", "ct": "court", "pl": "place",
	"sq": "square", "hwy": "highway", "pkwy": "parkway",
	"apt": "apartment", "ste": "suite", "fl": "floor",
	"corp": "corporation", "co": "company", "inc": "incorporated", "ltd": "limited",
}

var addrTokenRE = regexp.MustCompile(`[a-zA-Z0-9]+`)

// normalizeAddress lowercases and expands common street/company
// abbreviations token by token.
func normalizeAddress(addr string) string {
	tokens := addrTokenRE.FindAllString(strings.ToLower(addr), -1)
	for i, tok := range tokens {
		if expanded, ok := streetAbbrevs[strings.TrimRight(tok, ".")]; ok {
			tokens[i] = expanded
		}
	}
	return strings.Join(tokens, " ")
}

// dateLayouts are probed in order; the first that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006/01/02",
	"02 Jan 2006",
}

// normalizeDate parses a freeform date string into ISO (YYYY-MM-DD),
// probing known formats; returns ("", false) if none match.
func normalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// NormalizeName exports normalizeName for callers outside the pipeline
// (the Ontology Store computes entity IDs from the same normalized form
// Preprocess attaches to a candidate).
func NormalizeName(name string) string { return normalizeName(name) }

// NormalizeAddress exports normalizeAddress for the same reason.
func NormalizeAddress(addr string) string { return normalizeAddress(addr) }

// knownIdentifierKeys is the set of identifier keys preprocess
// recognizes, per spec.md §4.10 step 1 "harvest identifiers from a
// known-key set". Keys are matched exactly as listed (lowercase); each
// harvested value is trimmed and lowercased.
var knownIdentifierKeys = []string{"ein", "duns", "ticker", "ssn", "cik", "lei", "domain"}

// Preprocess implements spec.md §4.10 step 1, populating c.Normalized.
// It is idempotent: re-running it on an already-normalized candidate
// produces the same Normalized value (spec.md §8's idempotence property).
func Preprocess(c *model.CandidateEntity) {
	norm := &model.Normalized{
		Name:        normalizeName(c.Properties.Name),
		Address:     normalizeAddress(c.Properties.Address),
		Identifiers: map[string]string{},
	}
	for _, alias := range c.Properties.Aliases {
		norm.Aliases = append(norm.Aliases, normalizeName(alias))
	}
	for _, raw := range c.Properties.Dates {
		if iso, ok := normalizeDate(raw); ok {
			norm.Dates = append(norm.Dates, iso)
		}
	}
	for _, key := range knownIdentifierKeys {
		if v, ok := c.Properties.Identifiers[key]; ok && v != "" {
			norm.Identifiers[key] = strings.ToLower(strings.TrimSpace(v))
		}
	}
	c.Normalized = norm
}
