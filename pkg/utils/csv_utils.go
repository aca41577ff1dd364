package utils

import "strings"

// QuotedCSVRow renders fields as one CSV line with every field quoted
// and embedded quotes doubled. The line ends with "\n".
func QuotedCSVRow(fields ...string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	return b.String()
}
