package protocol

import "github.com/pkg/errors"

var (
	ErrUnknownRequestType = errors.New("unknown request type")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrUnexpectedStatus   = errors.New("unexpected host status")
)

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedPayload, format, args...)
}
