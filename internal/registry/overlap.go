package registry

import (
	"regexp/syntax"
	"sort"
	"strings"
	"unicode"

	"github.com/roach88/marcbridge/internal/ir"
)

const (
	tagCodeLen = 3
	tagKeyLen  = 5

	// Tag keys are printable ASCII.
	minKeyRune = 0x20
	maxKeyRune = 0x7e
)

// preferred are tried first so examples read like real tag keys.
const preferred = string(ir.BlankIndicator) + "0123456789"

// overlapExample searches for an input both rules match. It returns the
// first one found.
//
// Forward rules are searched over every printable five-character tag key:
// both patterns run side by side as NFAs, one character class at a time.
// Reverse rules are tried on their literal keys.
func overlapExample(dir ir.Direction, a, b *Rule) (string, bool) {
	if dir == ir.ToLegacy {
		for _, key := range []string{a.prefix, b.prefix} {
			if a.Matches(key) && b.Matches(key) {
				return key, true
			}
		}
		return "", false
	}

	// Anchored literal prefixes that diverge can never both match.
	if !strings.HasPrefix(a.prefix, b.prefix) && !strings.HasPrefix(b.prefix, a.prefix) {
		return "", false
	}

	pa, err := compileProg(a.Pattern)
	if err != nil {
		return "", false
	}
	pb, err := compileProg(b.Pattern)
	if err != nil {
		return "", false
	}
	return intersect(pa, pb, tagKeyLen)
}

func compileProg(pattern string) (*syntax.Prog, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, err
	}
	return syntax.Compile(re.Simplify())
}

// pair is one step of the joint search: the threads of each program waiting
// to consume the next rune, and whether each has matched already.
type pair struct {
	a, b     []uint32
	aOK, bOK bool
	prev     rune
	text     string
}

func (p pair) key() string {
	var sb strings.Builder
	for _, pc := range p.a {
		sb.WriteString(string(rune(pc + 1)))
	}
	sb.WriteByte('|')
	for _, pc := range p.b {
		sb.WriteString(string(rune(pc + 1)))
	}
	sb.WriteByte('|')
	if p.aOK {
		sb.WriteByte('a')
	}
	if p.bOK {
		sb.WriteByte('b')
	}
	sb.WriteString(string(p.prev))
	return sb.String()
}

// intersect returns a string of n runes on which both programs report a
// match with unanchored search semantics, as regexp.MatchString does.
func intersect(pa, pb *syntax.Prog, n int) (string, bool) {
	alphabet := keyAlphabet(pa, pb)
	frontier := []pair{{prev: -1}}

	for pos := 0; pos <= n; pos++ {
		var next []pair
		seen := make(map[string]bool)

		runes := alphabet
		if pos == n {
			runes = []rune{-1}
		}
		for _, st := range frontier {
			for _, c := range runes {
				flag := syntax.EmptyOpContext(st.prev, c)
				ca, aMatched := closure(pa, st.a, flag)
				cb, bMatched := closure(pb, st.b, flag)
				aOK, bOK := st.aOK || aMatched, st.bOK || bMatched

				if pos == n {
					if aOK && bOK {
						return st.text, true
					}
					continue
				}
				nx := pair{
					a:    step(pa, ca, c),
					b:    step(pb, cb, c),
					aOK:  aOK,
					bOK:  bOK,
					prev: c,
					text: st.text + string(c),
				}
				if k := nx.key(); !seen[k] {
					seen[k] = true
					next = append(next, nx)
				}
			}
		}
		frontier = next
	}
	return "", false
}

// closure follows empty transitions from pcs plus a fresh start thread.
func closure(p *syntax.Prog, pcs []uint32, flag syntax.EmptyOp) ([]uint32, bool) {
	visited := make(map[uint32]bool)
	var out []uint32
	matched := false

	var add func(pc uint32)
	add = func(pc uint32) {
		if visited[pc] {
			return
		}
		visited[pc] = true
		inst := &p.Inst[pc]
		switch inst.Op {
		case syntax.InstAlt, syntax.InstAltMatch:
			add(inst.Out)
			add(inst.Arg)
		case syntax.InstCapture, syntax.InstNop:
			add(inst.Out)
		case syntax.InstEmptyWidth:
			if syntax.EmptyOp(inst.Arg)&^flag == 0 {
				add(inst.Out)
			}
		case syntax.InstMatch:
			matched = true
		case syntax.InstRune, syntax.InstRune1, syntax.InstRuneAny, syntax.InstRuneAnyNotNL:
			out = append(out, pc)
		}
	}
	for _, pc := range pcs {
		add(pc)
	}
	add(uint32(p.Start))
	return out, matched
}

// step consumes c from every rune-consuming thread.
func step(p *syntax.Prog, pcs []uint32, c rune) []uint32 {
	var out []uint32
	seen := make(map[uint32]bool)
	for _, pc := range pcs {
		inst := &p.Inst[pc]
		var ok bool
		switch inst.Op {
		case syntax.InstRuneAny:
			ok = true
		case syntax.InstRuneAnyNotNL:
			ok = c != '\n'
		default:
			ok = inst.MatchRune(c)
		}
		if ok && !seen[inst.Out] {
			seen[inst.Out] = true
			out = append(out, inst.Out)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// keyAlphabet returns one printable rune from every interval the two
// programs' character classes cut the printable range into, preferred
// runes first. Runes in the same interval are interchangeable to both
// programs, so the search loses nothing.
func keyAlphabet(progs ...*syntax.Prog) []rune {
	cuts := map[rune]bool{minKeyRune: true}
	cut := func(r rune) {
		if r >= minKeyRune && r <= maxKeyRune {
			cuts[r] = true
		}
	}
	for _, p := range progs {
		for _, inst := range p.Inst {
			switch inst.Op {
			case syntax.InstRune:
				for i := 0; i+1 < len(inst.Rune); i += 2 {
					cut(inst.Rune[i])
					cut(inst.Rune[i+1] + 1)
				}
				if len(inst.Rune) == 1 {
					cutFolded(cut, inst.Rune[0])
				}
			case syntax.InstRune1:
				cutFolded(cut, inst.Rune[0])
			}
		}
	}

	var out []rune
	used := make(map[rune]bool)
	for _, r := range preferred {
		out = append(out, r)
		used[r] = true
	}
	var rest []rune
	for r := range cuts {
		if !used[r] {
			rest = append(rest, r)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// cutFolded cuts around a single rune and its case variants.
func cutFolded(cut func(rune), r rune) {
	for f := r; ; {
		cut(f)
		cut(f + 1)
		if f = unicode.SimpleFold(f); f == r {
			return
		}
	}
}
