package mqtt

import (
	"fmt"
	"strings"
)

// expected: {prefix}/session/{sessionId}/{kind}
func ParseSessionID(topic, prefix string) (string, error) {
	parts := strings.Split(topic, "/")
	prefixParts := strings.Split(prefix, "/")
	if len(parts) != len(prefixParts)+3 {
		return "", fmt.Errorf("invalid topic: %s", topic)
	}
	for i, p := range prefixParts {
		if parts[i] != p {
			return "", fmt.Errorf("topic prefix mismatch: %s", topic)
		}
	}
	if parts[len(prefixParts)] != "session" {
		return "", fmt.Errorf("invalid topic pattern: %s", topic)
	}
	id := parts[len(prefixParts)+1]
	if id == "" || id == "+" || id == "#" {
		return "", fmt.Errorf("invalid session id in topic: %s", topic)
	}
	return id, nil
}
