package eventlog

import (
	"fmt"
	"strings"
)

// RenderText produces the human-readable dump:
//
//	=== CRITICAL EVENTS (<n> recorded) ===
//
//	[<ms, width 6> ms] <NAME>[: <detail>]
//	...
//
//	=== STATUS FLAGS ===
//	<NAME>: YES|NO
//
// limit bounds the output size in bytes; whole lines that do not fit are
// left out. limit <= 0 means unbounded. A lock timeout yields "".
func (l *Log) RenderText(limit int) string {
	if !l.mu.TryLockFor(2 * l.lockWait) {
		return ""
	}
	defer l.mu.Unlock()

	out := &bounded{limit: limit}
	out.put(fmt.Sprintf("=== CRITICAL EVENTS (%d recorded) ===\n\n", len(l.records)))

	for _, r := range l.records {
		ms := r.At.Milliseconds()
		var line string
		if r.Detail != "" {
			line = fmt.Sprintf("[%6d ms] %s: %s\n", ms, r.Type, r.Detail)
		} else {
			line = fmt.Sprintf("[%6d ms] %s\n", ms, r.Type)
		}
		if !out.put(line) {
			return out.String()
		}
	}

	if !out.put("\n=== STATUS FLAGS ===\n") {
		return out.String()
	}
	for t := Type(0); t < numTypes; t++ {
		flag := "NO"
		if l.occurred[t] {
			flag = "YES"
		}
		if !out.put(t.String() + ": " + flag + "\n") {
			break
		}
	}
	return out.String()
}

// RenderStatusJSON returns every event type mapped to its occurrence flag,
// one per line in declaration order:
//
//	{
//	  "USB_MOUNTED": true,
//	  ...
//	  "RECOVERY_EXHAUSTED": false
//	}
//
// The layout is fixed, so it is written by hand rather than through
// encoding/json, which would not keep declaration order for a map.
func (l *Log) RenderStatusJSON() string {
	if !l.mu.TryLockFor(2 * l.lockWait) {
		return ""
	}
	defer l.mu.Unlock()

	var b strings.Builder
	b.WriteString("{\n")
	for t := Type(0); t < numTypes; t++ {
		b.WriteString(`  "`)
		b.WriteString(t.String())
		b.WriteString(`": `)
		if l.occurred[t] {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		if t < numTypes-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return b.String()
}

// bounded is a builder that refuses writes past limit.
type bounded struct {
	strings.Builder
	limit int
}

func (b *bounded) put(s string) bool {
	if b.limit > 0 && b.Len()+len(s) > b.limit {
		// An oversized first write is cut to limit.
		if b.Len() == 0 {
			b.WriteString(s[:b.limit])
		}
		return false
	}
	b.WriteString(s)
	return true
}
