// Package serializer implements the binary wire format of mKV. It defines a
// common interface and the binary implementation used by both the server and
// the client.
//
// Frame Layout:
//
//	[1 byte tag][payload]
//
//	token  = [u32 big endian length][length bytes]   (no bytes follow a zero length)
//	count  = [u16 big endian]
//
//	Write               tag, count of pairs, count x (key token, value token)
//	Read, Delete        tag, count, count x key token
//	Use, Detach         tag, name token
//	CurrentDb, ListDb   tag
//	RangeBegin/End      tag, u16 page size
//	RangeFrom*          tag, u16 page size, key token
//	Ok, Error           tag, UTF-8 message token
//	Token               tag, token
//	Tokens              tag, count, count x token
//	Pairs               tag, count of pairs, count x (key token, value token)
//
// An empty token is used by responses to mean "none". It decodes to an empty,
// non-nil slice and cannot be told apart from a present but empty value.
//
// Errors:
//
//   - ErrMalformedProtocol: unknown tag, truncated frame or a token above the
//     configured limit. The stream cannot be resynchronized after this error.
//   - ErrTextEncoding: an Ok or Error message is not valid UTF-8.
//   - ErrMessageTooLarge: Serialize was given a value that does not fit its
//     length or count field.
//
// Thread Safety:
//
//	Serializers are stateless and safe for concurrent use across multiple
//	goroutines without additional synchronization. A single io.Reader must not
//	be read by two Deserialize calls at the same time.
//
// Usage:
//
//	serializer := serializer.NewBinarySerializer()
//	data, err := serializer.Serialize(common.NewUseRequest("users"))
//	// ... send data ...
//	msg, err := serializer.Deserialize(conn)
package serializer
