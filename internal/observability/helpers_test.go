package observability

import (
	"bytes"
	"strings"
)

type bytesBuffer struct {
	bytes.Buffer
}

func (b *bytesBuffer) lines() int { return strings.Count(b.String(), "\n") }

func (b *bytesBuffer) contains(s string) bool { return strings.Contains(b.String(), s) }
