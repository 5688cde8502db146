package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest   = "E_PROTO_BAD_REQUEST"
	ErrSubscribeRequired = "E_SUBSCRIBE_REQUIRED"
	ErrBadVersion        = "E_BAD_VERSION"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrSubscribeRequired: {},
	ErrBadVersion:        {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
