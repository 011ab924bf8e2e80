package resolver

import "strings"

// pairKey identifies an unordered candidate-index pair.
type pairKey struct{ a, b int }

func makePairKey(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// blockKeys computes every blocking key for one candidate, per spec.md
// §4.10 step 2: identifier, name-prefix, and phonetic strategies.
// strategies restricts which are computed (config.BlockingStrategies);
// nil/empty means all three.
func blockKeys(name, entityType string, aliases []string, identifiers map[string]string, strategies []string) []string {
	want := func(s string) bool {
		if len(strategies) == 0 {
			return true
		}
		for _, x := range strategies {
			if x == s {
				return true
			}
		}
		return false
	}

	var keys []string
	if want("identifier") {
		for k, v := range identifiers {
			if v != "" {
				keys = append(keys, "id:"+k+":"+v)
			}
		}
	}
	if want("name_prefix") {
		names := append([]string{name}, aliases...)
		for _, n := range names {
			if p := namePrefix(n); p != "" {
				keys = append(keys, "prefix:"+p+":"+entityType)
			}
		}
	}
	if want("phonetic") {
		if p := phonetic(name); p != "" {
			keys = append(keys, "phon:"+p+":"+entityType)
		}
	}
	return keys
}

func namePrefix(n string) string {
	n = strings.ReplaceAll(n, " ", "")
	if len(n) < 3 {
		return n
	}
	return n[:3]
}

// phonetic implements spec.md §4.10's simplified phonetic key: vowels to
// 'V', common digraph collapses (PH->F, CK->K, SCH->S), dedupe adjacent
// consonants, first 4 chars.
func phonetic(n string) string {
	n = strings.ToUpper(strings.ReplaceAll(n, " ", ""))
	n = strings.ReplaceAll(n, "SCH", "S")
	n = strings.ReplaceAll(n, "PH", "F")
	n = strings.ReplaceAll(n, "CK", "K")

	var b strings.Builder
	for _, r := range n {
		switch r {
		case 'A', 'E', 'I', 'O', 'U':
			b.WriteRune('V')
		default:
			b.WriteRune(r)
		}
	}
	collapsed := dedupeAdjacent(b.String())
	if len(collapsed) > 4 {
		collapsed = collapsed[:4]
	}
	return collapsed
}

func dedupeAdjacent(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	var last rune = -1
	for _, r := range s {
		if r != last || r == 'V' {
			b.WriteRune(r)
		}
		last = r
	}
	return b.String()
}

// blockPairs builds the union of all block-sharing candidate pairs.
func blockPairs(cands []candidateKeys) []pairKey {
	buckets := map[string][]int{}
	for i, ck := range cands {
		for _, k := range ck.keys {
			buckets[k] = append(buckets[k], i)
		}
	}
	seen := map[pairKey]bool{}
	var pairs []pairKey
	for _, indices := range buckets {
		for i := 0; i < len(indices); i++ {
			for j := i + 1; j < len(indices); j++ {
				pk := makePairKey(indices[i], indices[j])
				if !seen[pk] {
					seen[pk] = true
					pairs = append(pairs, pk)
				}
			}
		}
	}
	return pairs
}

type candidateKeys struct {
	keys []string
}
