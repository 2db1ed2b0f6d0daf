package template

import (
	"fmt"
	"math/rand/v2"
	"regexp/syntax"
	"strings"
)

// maxUnboundedRepeat caps * and + quantifiers so a pattern can never ask for
// unbounded output.
const maxUnboundedRepeat = 10

// generateFromPattern produces a random string matching the given regular
// expression, walking the parsed syntax tree.
func generateFromPattern(pattern string) (string, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", fmt.Errorf("parse mock pattern: %w", err)
	}
	var b strings.Builder
	if err := generateNode(&b, re.Simplify()); err != nil {
		return "", err
	}
	return b.String(), nil
}

func generateNode(b *strings.Builder, re *syntax.Regexp) error {
	switch re.Op {
	case syntax.OpLiteral:
		b.WriteString(string(re.Rune))
	case syntax.OpCharClass:
		if len(re.Rune) == 0 {
			return fmt.Errorf("empty character class")
		}
		// Rune holds inclusive pair ranges; pick a range weighted evenly by
		// range, then a rune within it.
		i := 2 * rand.IntN(len(re.Rune)/2)
		lo, hi := re.Rune[i], re.Rune[i+1]
		b.WriteRune(lo + rune(rand.IntN(int(hi-lo)+1)))
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		const pool = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		b.WriteByte(pool[rand.IntN(len(pool))])
	case syntax.OpCapture:
		return generateNode(b, re.Sub[0])
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if err := generateNode(b, sub); err != nil {
				return err
			}
		}
	case syntax.OpAlternate:
		return generateNode(b, re.Sub[rand.IntN(len(re.Sub))])
	case syntax.OpStar:
		return repeatNode(b, re.Sub[0], 0, maxUnboundedRepeat)
	case syntax.OpPlus:
		return repeatNode(b, re.Sub[0], 1, maxUnboundedRepeat)
	case syntax.OpQuest:
		return repeatNode(b, re.Sub[0], 0, 1)
	case syntax.OpRepeat:
		max := re.Max
		if max < 0 {
			max = re.Min + maxUnboundedRepeat
		}
		return repeatNode(b, re.Sub[0], re.Min, max)
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText, syntax.OpWordBoundary,
		syntax.OpNoWordBoundary:
		// Zero-width; nothing to emit.
	default:
		return fmt.Errorf("unsupported pattern construct %v", re.Op)
	}
	return nil
}

func repeatNode(b *strings.Builder, sub *syntax.Regexp, min, max int) error {
	n := min
	if max > min {
		n += rand.IntN(max - min + 1)
	}
	for i := 0; i < n; i++ {
		if err := generateNode(b, sub); err != nil {
			return err
		}
	}
	return nil
}
