package mn

import (
	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"

	"github.com/redcloud/files/modules"
)

// encodePayload serializes v for embedding in a gossip-log entry's
// Payload field.
func encodePayload(v interface{}) []byte {
	return encoding.Marshal(v)
}

// decodePayload deserializes a gossip-log entry's Payload field into v.
func decodePayload(payload []byte, v interface{}) error {
	if err := encoding.Unmarshal(payload, v); err != nil {
		return errors.AddContext(err, "failed to decode gossip payload")
	}
	return nil
}

// idOf extracts the stable identifier from any of the replicated entity
// types, used to key a lookup during gossip-entry apply.
func idOf(v interface{}) string {
	switch e := v.(type) {
	case modules.User:
		return e.ID
	case modules.File:
		return e.ID
	case modules.TagSet:
		return e.FileID
	case modules.Chunk:
		return e.ID
	case modules.StorageNode:
		return e.ID
	case modules.MetadataNode:
		return e.ID
	default:
		return ""
	}
}
