// internal/poller/format.go
package poller

import (
	"strconv"
	"strings"
)

// formatLine renders one device as "<label> AX:<v> g AY:<v> g AZ:<v> g".
// Absent fields render empty.
func formatLine(label string, fields map[string]float64, specs []FieldSpec) string {
	var b strings.Builder
	b.WriteString(label)

	for _, f := range specs {
		b.WriteByte(' ')
		b.WriteString(f.Label)
		b.WriteByte(':')
		if v, ok := fields[f.Key]; ok {
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
		if f.Unit != "" {
			b.WriteByte(' ')
			b.WriteString(f.Unit)
		}
	}
	return b.String()
}
