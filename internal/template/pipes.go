package template

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"net/url"
	"strconv"
	"strings"
)

// pipeFunc transforms a rendered value. Args come from the pipe call site
// already unquoted. A false return marks the whole token as unresolvable.
type pipeFunc func(value string, args []string) (any, bool)

var pipes = map[string]pipeFunc{
	"md5":    hashPipe(md5.New),
	"sha1":   hashPipe(sha1.New),
	"sha224": hashPipe(sha256.New224),
	"sha256": hashPipe(sha256.New),
	"sha384": hashPipe(sha512.New384),
	"sha512": hashPipe(sha512.New),

	"base64": func(v string, _ []string) (any, bool) {
		return base64.StdEncoding.EncodeToString([]byte(v)), true
	},
	"unbase64": func(v string, _ []string) (any, bool) {
		out, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, false
		}
		return string(out), true
	},
	"encodeUriComponent": func(v string, _ []string) (any, bool) {
		return encodeURIComponent(v), true
	},
	"decodeUriComponent": func(v string, _ []string) (any, bool) {
		out, err := url.QueryUnescape(strings.ReplaceAll(v, "+", "%2B"))
		if err != nil {
			return nil, false
		}
		return out, true
	},

	"lower": func(v string, _ []string) (any, bool) { return strings.ToLower(v), true },
	"upper": func(v string, _ []string) (any, bool) { return strings.ToUpper(v), true },

	"number": func(v string, _ []string) (any, bool) {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	},

	"substr": func(v string, args []string) (any, bool) {
		if len(args) < 1 {
			return nil, false
		}
		runes := []rune(v)
		start, err := strconv.Atoi(args[0])
		if err != nil || start < 0 {
			return nil, false
		}
		end := len(runes)
		if len(args) > 1 {
			end, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, false
			}
		}
		if start > len(runes) {
			start = len(runes)
		}
		if end > len(runes) {
			end = len(runes)
		}
		if end < start {
			end = start
		}
		return string(runes[start:end]), true
	},

	"concat": func(v string, args []string) (any, bool) {
		return v + strings.Join(args, ""), true
	},
	"lconcat": func(v string, args []string) (any, bool) {
		return strings.Join(args, "") + v, true
	},

	"padEnd":   padPipe(false),
	"padStart": padPipe(true),

	"length": func(v string, _ []string) (any, bool) {
		return len([]rune(v)), true
	},
}

func callPipe(name, value string, args []string) (any, bool) {
	fn, ok := pipes[name]
	if !ok {
		return nil, false
	}
	return fn(value, args)
}

func hashPipe(newHash func() hash.Hash) pipeFunc {
	return func(v string, _ []string) (any, bool) {
		h := newHash()
		h.Write([]byte(v))
		return hex.EncodeToString(h.Sum(nil)), true
	}
}

func padPipe(start bool) pipeFunc {
	return func(v string, args []string) (any, bool) {
		if len(args) < 1 {
			return nil, false
		}
		target, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, false
		}
		pad := " "
		if len(args) > 1 && args[1] != "" {
			pad = args[1]
		}
		runes := []rune(v)
		if len(runes) >= target {
			return v, true
		}
		var fill strings.Builder
		for fill.Len() == 0 || len([]rune(fill.String())) < target-len(runes) {
			fill.WriteString(pad)
		}
		filler := []rune(fill.String())[:target-len(runes)]
		if start {
			return string(filler) + v, true
		}
		return v + string(filler), true
	}
}

// encodeURIComponent matches the JavaScript function of the same name, which
// escapes fewer characters than url.QueryEscape.
func encodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for from, to := range map[string]string{
		"%21": "!", "%27": "'", "%28": "(", "%29": ")", "%2A": "*",
	} {
		escaped = strings.ReplaceAll(escaped, from, to)
	}
	return escaped
}
