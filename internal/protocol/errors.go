package protocol

import "errors"

// The protocol has no negative acknowledgement: frames the server cannot
// use are dropped and the connection stays open. These errors classify
// the drop for logs only and never go on the wire.
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMissingType = errors.New("missing message type")
)

var knownTypes = map[string]struct{}{
	TypeSnapshot: {},
	TypePaint:    {},
	TypePixels:   {},
}

func IsKnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// ClassifyType maps a decoded base tag to the drop reason, nil if the
// type is routable.
func ClassifyType(t string) error {
	if t == "" {
		return ErrMissingType
	}
	if !IsKnownType(t) {
		return ErrUnknownType
	}
	return nil
}
