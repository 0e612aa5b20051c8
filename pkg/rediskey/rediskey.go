package rediskey

import (
	"fmt"
	"strings"
)

// Key namespaces shared by every process talking to the same redis.
const (
	SequencePrefix = "seq"
)

func NamespaceKey(namespace string, parts ...string) string {
	return fmt.Sprintf("%s:%s", namespace, strings.Join(parts, ":"))
}

// BuildSequenceKey returns "seq:{prefix}:{scope}:{day}".
func BuildSequenceKey(prefix, scope, day string) string {
	return NamespaceKey(SequencePrefix, prefix, scope, day)
}
