// Package codec encodes command values for storage.
//
// Commands are stored as CBOR with Core Deterministic Encoding (RFC 8949
// §4.2): the same command always produces the same bytes, so journal
// rows can be compared byte-for-byte.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/deepakjacob/launchk/internal/domain"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeCommand serialises a command, including nested chains.
func EncodeCommand(cmd domain.Command) ([]byte, error) {
	data, err := Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command %s: %w", cmd, err)
	}
	return data, nil
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(data []byte) (domain.Command, error) {
	var cmd domain.Command
	if err := Unmarshal(data, &cmd); err != nil {
		return domain.Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	return cmd, nil
}

// Diagnose returns the CBOR diagnostic notation for data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
