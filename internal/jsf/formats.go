package jsf

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var words = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing",
	"elit", "sed", "do", "eiusmod", "tempor", "incididunt", "labore", "magna",
}

var (
	// generated timestamps fall between these instants
	minTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
)

func builtinFormat(format string, r Random) (any, bool) {
	switch format {
	case "date-time":
		return randomTime(r).Format(time.RFC3339), true
	case "date":
		return randomTime(r).Format("2006-01-02"), true
	case "time":
		return randomTime(r).Format("15:04:05Z07:00"), true
	case "email":
		return fmt.Sprintf("%s.%s@example.com", words[intn(r, len(words))], words[intn(r, len(words))]), true
	case "uuid":
		id, err := uuid.NewRandomFromReader(reader{r})
		if err != nil {
			return nil, false
		}
		return id.String(), true
	case "uri", "url":
		return "https://example.com/" + words[intn(r, len(words))], true
	case "hostname":
		return words[intn(r, len(words))] + ".example.com", true
	case "ipv4":
		return fmt.Sprintf("%d.%d.%d.%d", intn(r, 256), intn(r, 256), intn(r, 256), intn(r, 256)), true
	case "ipv6":
		parts := make([]string, 8)
		for i := range parts {
			parts[i] = fmt.Sprintf("%x", intn(r, 0x10000))
		}
		return strings.Join(parts, ":"), true
	case "byte":
		return base64.StdEncoding.EncodeToString([]byte(randomWords(r, 8))), true
	}
	return nil, false
}

func randomTime(r Random) time.Time {
	span := maxTime.Unix() - minTime.Unix()
	return time.Unix(minTime.Unix()+int64(r.Float64()*float64(span)), 0).UTC()
}

// randomWords builds a space-separated string of exactly n characters
func randomWords(r Random, n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for b.Len() < n {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[intn(r, len(words))])
	}
	s := b.String()[:n]
	if s[n-1] == ' ' {
		s = s[:n-1] + "a"
	}
	return s
}
