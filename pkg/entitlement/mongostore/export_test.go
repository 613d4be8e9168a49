package mongostore

// Test hooks for the extended JSON round trip.
var (
	Encode = encode
	Decode = decode
)
