package protocol

import (
	"encoding/json"
	"time"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Timestamps travel as RFC 3339 UTC strings.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ParseStamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
