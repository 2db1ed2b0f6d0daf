package template

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// mockFunc generates a fresh value on every call. Mocks never consult
// variables; their presence in a text switches resolution to ChangeEveryTime
// so each occurrence is drawn independently.
type mockFunc func(args []string) (any, bool)

var incrementCounter atomic.Int64

var mocks = map[string]mockFunc{
	"boolean": func(_ []string) (any, bool) { return rand.IntN(2) == 1, true },

	"natural": func(args []string) (any, bool) { return randInt(args, 0, 1_000_000), true },
	"integer": func(args []string) (any, bool) { return randInt(args, -1_000_000, 1_000_000), true },
	"float": func(args []string) (any, bool) {
		min, max := float64(-1_000_000), float64(1_000_000)
		if len(args) > 0 {
			if f, err := strconv.ParseFloat(args[0], 64); err == nil {
				min = f
			}
		}
		if len(args) > 1 {
			if f, err := strconv.ParseFloat(args[1], 64); err == nil {
				max = f
			}
		}
		if max < min {
			min, max = max, min
		}
		return min + rand.Float64()*(max-min), true
	},

	"character": func(_ []string) (any, bool) {
		const pool = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		return string(pool[rand.IntN(len(pool))]), true
	},
	"string": func(args []string) (any, bool) {
		n := 10
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v >= 0 {
				n = v
			}
		}
		const pool = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteByte(pool[rand.IntN(len(pool))])
		}
		return b.String(), true
	},

	"word":     func(_ []string) (any, bool) { return words[rand.IntN(len(words))], true },
	"sentence": func(_ []string) (any, bool) { return mockSentence(), true },
	"title": func(_ []string) (any, bool) {
		parts := make([]string, 2+rand.IntN(3))
		for i := range parts {
			w := words[rand.IntN(len(words))]
			parts[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(parts, " "), true
	},
	"paragraph": func(_ []string) (any, bool) {
		parts := make([]string, 3+rand.IntN(3))
		for i := range parts {
			parts[i] = mockSentence()
		}
		return strings.Join(parts, " "), true
	},

	"cword": func(_ []string) (any, bool) { return string(cnChars[rand.IntN(len(cnChars))]), true },
	"csentence": func(_ []string) (any, bool) {
		return cnRun(8+rand.IntN(12)) + "。", true
	},
	"cparagraph": func(_ []string) (any, bool) {
		parts := make([]string, 3+rand.IntN(3))
		for i := range parts {
			parts[i] = cnRun(8+rand.IntN(12)) + "。"
		}
		return strings.Join(parts, ""), true
	},
	"ctitle": func(_ []string) (any, bool) { return cnRun(3 + rand.IntN(5)), true },

	"first": func(_ []string) (any, bool) { return firstNames[rand.IntN(len(firstNames))], true },
	"last":  func(_ []string) (any, bool) { return lastNames[rand.IntN(len(lastNames))], true },
	"name": func(_ []string) (any, bool) {
		return firstNames[rand.IntN(len(firstNames))] + " " + lastNames[rand.IntN(len(lastNames))], true
	},
	"cfirst": func(_ []string) (any, bool) { return cnSurnames[rand.IntN(len(cnSurnames))], true },
	"clast":  func(_ []string) (any, bool) { return cnRun(1 + rand.IntN(2)), true },
	"cname": func(_ []string) (any, bool) {
		return cnSurnames[rand.IntN(len(cnSurnames))] + cnRun(1+rand.IntN(2)), true
	},

	"date": func(args []string) (any, bool) {
		return offsetTime(args, 24*time.Hour).Format("2006-01-02"), true
	},
	"time": func(args []string) (any, bool) {
		return offsetTime(args, time.Second).Format("15:04:05"), true
	},
	"datetime": func(args []string) (any, bool) {
		return offsetTime(args, time.Second).Format("2006-01-02 15:04:05"), true
	},
	"now": func(_ []string) (any, bool) {
		return time.Now().Format("2006-01-02 15:04:05"), true
	},
	"timestamp": func(args []string) (any, bool) {
		return offsetTime(args, time.Second).UnixMilli(), true
	},

	"guid": func(_ []string) (any, bool) { return uuid.NewString(), true },
	"id": func(_ []string) (any, bool) {
		// Mainland resident id shape: 6 area digits, birth date, 3 sequence
		// digits, 1 check character.
		area := 110000 + rand.IntN(540000)
		birth := time.Now().AddDate(-18-rand.IntN(42), 0, -rand.IntN(365))
		seq := rand.IntN(1000)
		check := "0123456789X"[rand.IntN(11)]
		return fmt.Sprintf("%06d%s%03d%c", area, birth.Format("20060102"), seq, check), true
	},
	"increment": func(args []string) (any, bool) {
		step := int64(1)
		if len(args) > 0 {
			if v, err := strconv.ParseInt(args[0], 10, 64); err == nil {
				step = v
			}
		}
		return incrementCounter.Add(step), true
	},

	"phone": func(_ []string) (any, bool) {
		prefixes := []string{"130", "131", "135", "136", "138", "139", "150", "151", "155", "158", "177", "186", "188"}
		return prefixes[rand.IntN(len(prefixes))] + fmt.Sprintf("%08d", rand.IntN(100_000_000)), true
	},
	"email": func(args []string) (any, bool) {
		domain := "example.com"
		if len(args) > 0 && args[0] != "" {
			domain = args[0]
		}
		return mockString(8) + "@" + domain, true
	},
	"ip": func(_ []string) (any, bool) {
		return fmt.Sprintf("%d.%d.%d.%d", 1+rand.IntN(254), rand.IntN(256), rand.IntN(256), 1+rand.IntN(254)), true
	},
	"domain": func(_ []string) (any, bool) {
		tlds := []string{"com", "net", "org", "cn", "io"}
		return mockString(6) + "." + tlds[rand.IntN(len(tlds))], true
	},
	"url": func(_ []string) (any, bool) {
		tlds := []string{"com", "net", "org", "cn", "io"}
		return "https://" + mockString(6) + "." + tlds[rand.IntN(len(tlds))] + "/" + mockString(5), true
	},

	"color": func(_ []string) (any, bool) {
		return fmt.Sprintf("#%06x", rand.IntN(0x1000000)), true
	},
	"rgb": func(_ []string) (any, bool) {
		return fmt.Sprintf("rgb(%d, %d, %d)", rand.IntN(256), rand.IntN(256), rand.IntN(256)), true
	},

	"regexp": func(args []string) (any, bool) {
		if len(args) == 0 {
			return nil, false
		}
		out, err := generateFromPattern(args[0])
		if err != nil {
			return nil, false
		}
		return out, true
	},
}

func callMock(name string, args []string) (any, bool) {
	fn, ok := mocks[name]
	if !ok {
		return nil, false
	}
	return fn(args)
}

func randInt(args []string, min, max int64) int64 {
	if len(args) > 0 {
		if v, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			min = v
		}
	}
	if len(args) > 1 {
		if v, err := strconv.ParseInt(args[1], 10, 64); err == nil {
			max = v
		}
	}
	if max < min {
		min, max = max, min
	}
	return min + rand.Int64N(max-min+1)
}

func offsetTime(args []string, unit time.Duration) time.Time {
	t := time.Now()
	if len(args) > 0 {
		if v, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			t = t.Add(time.Duration(v) * unit)
		}
	}
	return t
}

func mockString(n int) string {
	const pool = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(pool[rand.IntN(len(pool))])
	}
	return b.String()
}

func mockSentence() string {
	n := 5 + rand.IntN(8)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[rand.IntN(len(words))]
	}
	s := strings.Join(parts, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func cnRun(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(cnChars[rand.IntN(len(cnChars))])
	}
	return b.String()
}

var words = []string{
	"time", "year", "people", "way", "day", "man", "thing", "world", "life",
	"hand", "part", "child", "eye", "woman", "place", "work", "week", "case",
	"point", "company", "number", "group", "problem", "fact", "water", "month",
	"lot", "right", "study", "book", "word", "business", "issue", "side",
	"kind", "head", "house", "service", "friend", "power", "hour", "game",
	"line", "end", "member", "law", "car", "city", "name", "team",
}

var firstNames = []string{
	"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael",
	"Linda", "William", "Elizabeth", "David", "Susan", "Richard", "Jessica",
	"Joseph", "Sarah", "Thomas", "Karen", "Charles", "Nancy",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Wilson", "Anderson", "Taylor",
	"Thomas", "Moore", "Jackson", "Martin", "Lee", "Thompson", "White",
}

var cnSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "黄", "赵", "吴", "周",
	"徐", "孙", "马", "朱", "胡", "郭", "何", "林", "高", "罗",
}

var cnChars = []rune("的一是在不了有和人这中大为上个国我以要他时来用们" +
	"生到作地于出就分对成会可主发年动同工也能下过子说产种面而方后多定行学法所民得经")
