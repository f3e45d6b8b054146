package notify

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize запас под лимит 2000 символов чата
const DefaultChunkSize = 1900

// Chunk делит текст на части не длиннее size символов по границам строк.
// Строка длиннее size режется посимвольно.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var (
		out  []string
		cur  strings.Builder
		n    int
		open bool // в текущей части уже есть строка, в том числе пустая
	)
	flush := func() {
		if open {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
			open = false
		}
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > size {
			flush()
			out = append(out, string(runes[:size]))
			runes = runes[size:]
		}
		l := len(runes)
		if open && n+1+l > size {
			flush()
		}
		if open {
			cur.WriteByte('\n')
			n++
		}
		cur.WriteString(string(runes))
		n += l
		open = true
	}
	flush()
	return out
}
