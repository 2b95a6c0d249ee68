package session

// CurrentSchemaVersion is the schema byte written by [Encode].
const CurrentSchemaVersion uint8 = 2

// Record is one provider-side sign-in. A device key groups the browser tabs that
// share it.
type Record struct {
	SchemaVersion uint8

	SessionID string
	UserID    string
	Email     string
	DeviceKey string

	IPHash        [32]byte
	UserAgentHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}
