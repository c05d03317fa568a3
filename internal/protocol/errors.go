package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest  = "E_PROTO_BAD_REQUEST"
	ErrProtoUnsupported = "E_PROTO_UNSUPPORTED"

	// World routing/state.
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"

	ErrBadRequest = "E_BAD_REQUEST"
	ErrStore      = "E_STORE"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoUnsupported: {},
	ErrWorldNotFound:    {},
	ErrBadRequest:       {},
	ErrStore:            {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
