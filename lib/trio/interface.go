package trio

import (
	"fmt"

	"github.com/foliodb/foliodb/lib/haystack"
)

// ITrioSerializer is the interface for record codecs. The folio engine only
// depends on this seam, so the textual trio format can be swapped for any
// other encoding.
type ITrioSerializer interface {
	// Serialize encodes a dict into a byte array.
	// It returns the encoded byte array and an error if any.
	Serialize(d *haystack.Dict) ([]byte, error)
	// Deserialize decodes a byte array into a dict.
	// It returns an *EncodingError when the input is malformed.
	Deserialize(b []byte) (*haystack.Dict, error)
}

// EncodingError reports a malformed trio document. Decode failures are
// handled locally by the engine: the affected record is dropped from the
// cache with a warning and stays untouched in storage.
type EncodingError struct {
	Line int
	Msg  string
}

func (e *EncodingError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("trio: line %d: %s", e.Line, e.Msg)
	}
	return "trio: " + e.Msg
}
