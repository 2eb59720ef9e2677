package combiner

import (
	"bytes"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
	"go.gazette.dev/core/message"
)

// uuidPlaceholder is spliced into a drained document's UUID pointer
// location in place of the real publication UUID, which isn't known
// until a downstream system commits the document to a journal. See
// spec's "UUID placeholder literal".
var uuidPlaceholder = []byte("DocUUIDPlaceholder-329Bb50aa48EAa9ef")

// inspectUUID reports whether raw contains a parseable UUID at the
// pointer's location and, if so, whether its flags mark it as a
// transaction acknowledgement. A document with nothing at the UUID
// pointer (the common case: the field is populated downstream, not by
// the producer) is neither an error nor an ACK.
func inspectUUID(raw []byte, tokens []string, location string) (isACK bool, err error) {
	var val, typ, _, gerr = jsonparser.Get(raw, tokens...)
	if gerr == jsonparser.KeyPathNotFoundError {
		return false, nil
	} else if gerr != nil {
		return false, &InvalidUuid{Location: location, Detail: gerr.Error()}
	}
	if typ != jsonparser.String {
		return false, &InvalidUuid{Location: location, Detail: "UUID value is not a string"}
	}

	var id, perr = uuid.ParseBytes(val)
	if perr != nil {
		return false, &InvalidUuid{Location: location, Detail: perr.Error()}
	}
	return message.GetFlags(message.UUID(id)) == message.Flag_ACK_TXN, nil
}

// substituteUUID splices uuidPlaceholder into raw's JSON output at the
// byte range jsonparser locates for the configured UUID pointer. It
// operates on already-serialized bytes (rather than rebuilding the Doc
// tree) so that the common hot path -- a document with no UUID pointer
// configured at all -- never pays for the splice.
func substituteUUID(raw []byte, tokens []string) ([]byte, error) {
	// jsonparser.Get returns a sub-slice of raw's own backing array for
	// string values, so its start can be recovered with bytes.Index
	// rather than needing a byte-range-returning variant.
	var val, typ, _, gerr = jsonparser.Get(raw, tokens...)
	if gerr == jsonparser.KeyPathNotFoundError {
		return raw, nil
	} else if gerr != nil {
		return nil, gerr
	}
	if typ != jsonparser.String {
		return raw, nil
	}

	var idx = bytes.Index(raw, val)
	if idx < 0 {
		return raw, nil
	}
	var out = make([]byte, 0, len(raw))
	out = append(out, raw[:idx]...)
	out = append(out, uuidPlaceholder...)
	out = append(out, raw[idx+len(val):]...)
	return out, nil
}
