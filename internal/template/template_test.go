package template

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceNoTokenIdentity(t *testing.T) {
	texts := []string{
		"",
		"plain text",
		"almost { a token } but not",
		`{"json": "body"}`,
	}
	for _, text := range texts {
		got := NewExchange(text, MapLookup(map[string]any{"a": 1}), JustOnce).Replace()
		assert.Equal(t, text, got)
	}
}

func TestReplaceVariableAndLiteral(t *testing.T) {
	vars := MapLookup(map[string]any{
		"name":  "alice",
		"count": 3.0,
		"obj":   map[string]any{"k": "v"},
	})

	assert.Equal(t, "hello alice", Render("hello {{name}}", vars))
	assert.Equal(t, "n=3", Render("n={{count}}", vars))
	assert.Equal(t, `{"k":"v"}`, Render("{{obj}}", vars))
	assert.Equal(t, "lit", Render("{{'lit'}}", vars))
}

func TestReplaceUnknownVariableBecomesNull(t *testing.T) {
	assert.Equal(t, "v=null", Render("v={{missing}}", MapLookup(nil)))
	assert.Equal(t, "v=null", Render("v={{name|nosuchpipe}}", MapLookup(map[string]any{"name": "x"})))
}

func TestJustOnceResolvesEachTokenOnce(t *testing.T) {
	calls := 0
	lookup := func(name string) (any, bool) {
		calls++
		return "v", true
	}
	got := NewExchange("{{a}} {{a}} {{a}}", lookup, JustOnce).Replace()
	assert.Equal(t, "v v v", got)
	assert.Equal(t, 1, calls)
}

func TestChangeEveryTimeDrawsMocksIndependently(t *testing.T) {
	text := "{% mock 'guid' %}-{% mock 'guid' %}"
	require.Equal(t, ChangeEveryTime, AutoMode(text))

	got := NewExchange(text, nil, AutoMode(text)).Replace()
	// A guid contains dashes itself; compare the halves by position.
	require.Len(t, got, 36*2+1)
	assert.NotEqual(t, got[:36], got[37:])
}

func TestAutoMode(t *testing.T) {
	assert.Equal(t, JustOnce, AutoMode("{{name}}"))
	assert.Equal(t, ChangeEveryTime, AutoMode("{% mock 'integer' %}"))
}

func TestPipeInverses(t *testing.T) {
	vars := MapLookup(map[string]any{"v": "hello 世界 &?"})

	b64 := Render("{{v|base64}}", vars)
	decoded, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	assert.Equal(t, "hello 世界 &?", string(decoded))
	assert.Equal(t, "hello 世界 &?", Render("{{v|base64|unbase64}}", vars))

	assert.Equal(t, "hello 世界 &?", Render("{{v|encodeUriComponent|decodeUriComponent}}", vars))
	assert.Equal(t, "hello 世界 &?", Render("{{v|upper|lower}}", MapLookup(map[string]any{"v": "hello 世界 &?"})))
}

func TestPipeChains(t *testing.T) {
	vars := MapLookup(map[string]any{"word": "Golang"})

	assert.Equal(t, "GOLANG", Render("{{word|upper}}", vars))
	assert.Equal(t, "Gol", Render("{{word|substr(0,3)}}", vars))
	assert.Equal(t, "6", Render("{{word|length}}", vars))
	assert.Equal(t, "..Golang", Render("{{word|padStart(8,'.')}}", vars))
	assert.Equal(t, "Golang..", Render("{{word|padEnd(8,'.')}}", vars))
	assert.Equal(t, "Golang!", Render("{{word|concat('!')}}", vars))
	assert.Equal(t, "go:Golang", Render("{{word|lconcat('go:')}}", vars))
}

func TestHashPipes(t *testing.T) {
	vars := MapLookup(map[string]any{"v": "abc"})
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", Render("{{v|md5}}", vars))
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", Render("{{v|sha1}}", vars))
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Render("{{v|sha256}}", vars))
}

func TestNumberPipe(t *testing.T) {
	vars := MapLookup(map[string]any{"i": "42", "f": "3.5"})
	assert.Equal(t, int64(42), NewExchange("{{i|number}}", vars, JustOnce).ReplaceValue())
	assert.Equal(t, 3.5, NewExchange("{{f|number}}", vars, JustOnce).ReplaceValue())
}

func TestReplaceValueKeepsType(t *testing.T) {
	vars := MapLookup(map[string]any{
		"n":    7.0,
		"list": []any{"a", "b"},
	})
	assert.Equal(t, 7.0, NewExchange("{{n}}", vars, JustOnce).ReplaceValue())
	assert.Equal(t, []any{"a", "b"}, NewExchange("{{list}}", vars, JustOnce).ReplaceValue())
	// Mixed text falls back to string substitution.
	assert.Equal(t, "n=7", NewExchange("n={{n}}", vars, JustOnce).ReplaceValue())
	// Unresolvable single token degrades to the null literal.
	assert.Equal(t, "null", NewExchange("{{missing}}", vars, JustOnce).ReplaceValue())
}

func TestMockGenerators(t *testing.T) {
	guid, ok := Mock("guid")
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`), guid)

	first, _ := Mock("increment")
	second, _ := Mock("increment")
	assert.Equal(t, first.(int64)+1, second.(int64))

	ip, ok := Mock("ip")
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`), ip)

	_, ok = Mock("nosuchmock")
	assert.False(t, ok)
}

func TestMockRegexpPattern(t *testing.T) {
	pattern := `^[A-Z]{2}\d{4}$`
	v, ok := Mock("regexp", pattern)
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(pattern), v)
}

func TestEncodeURIComponentCompatibility(t *testing.T) {
	vars := MapLookup(map[string]any{"v": "a b!c'd(e)f*g"})
	got := Render("{{v|encodeUriComponent}}", vars)
	// JS keeps !'()* unescaped and uses %20 for spaces.
	assert.Equal(t, "a%20b!c'd(e)f*g", got)
}
