// Package vjson marshals and unmarshals wire messages through
// go-playground/validator, so a malformed or out-of-range peer message is
// rejected before it ever reaches a state machine as common.ErrProtocolViolation
// rather than a panic or a silently-zero field.
package vjson

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nthswap/xmrbtc-swap/common"
)

var validate = validator.New()

// MarshalStruct encodes v to JSON after validating its "validate" struct tags.
func MarshalStruct(v interface{}) ([]byte, error) {
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrProtocolViolation, err)
	}
	return json.Marshal(v)
}

// UnmarshalStruct decodes b into v and validates v's "validate" struct tags,
// returning common.ErrProtocolViolation on the first violation found.
func UnmarshalStruct(b []byte, v interface{}) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s", common.ErrProtocolViolation, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", common.ErrProtocolViolation, err)
	}
	return nil
}
