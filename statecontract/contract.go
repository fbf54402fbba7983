// Package statecontract defines the capability surface a host
// application provides for its own state type. It is deliberately not an
// open-world interface: the engine stores a fixed set of function
// pointers bound once at session construction, never a dynamically
// dispatched value.
package statecontract

import "errors"

var (
	ErrApply  = errors.New("statecontract: apply_diff failed")
	ErrDecode = errors.New("statecontract: decode_diff failed")
)

// Contract binds the five operations the sync engine needs for state
// type S with diff type D. All five must be non-nil; New rejects
// a contract missing any of them.
type Contract[S any, D any] struct {
	// StateTypeID is a printable ASCII string naming the application's
	// state schema (e.g. "nomad.echo.v1"), carried in Handshake Init.
	StateTypeID string

	DiffFrom    func(old, new S) D
	ApplyDiff   func(state S, diff D) (S, error)
	EncodeDiff  func(diff D) []byte
	DecodeDiff  func(data []byte) (D, error)
	IsDiffEmpty func(diff D) bool
}

// New validates that every capability function is bound and returns the
// contract. The engine never inspects D's contents itself — only these
// functions do.
func New[S any, D any](
	stateTypeID string,
	diffFrom func(old, new S) D,
	applyDiff func(state S, diff D) (S, error),
	encodeDiff func(diff D) []byte,
	decodeDiff func(data []byte) (D, error),
	isDiffEmpty func(diff D) bool,
) (*Contract[S, D], error) {
	c := &Contract[S, D]{
		StateTypeID: stateTypeID,
		DiffFrom:    diffFrom,
		ApplyDiff:   applyDiff,
		EncodeDiff:  encodeDiff,
		DecodeDiff:  decodeDiff,
		IsDiffEmpty: isDiffEmpty,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contract[S, D]) validate() error {
	switch {
	case c.StateTypeID == "":
		return errors.New("statecontract: state type id must not be empty")
	case c.DiffFrom == nil:
		return errors.New("statecontract: diff_from must not be nil")
	case c.ApplyDiff == nil:
		return errors.New("statecontract: apply_diff must not be nil")
	case c.EncodeDiff == nil:
		return errors.New("statecontract: encode_diff must not be nil")
	case c.DecodeDiff == nil:
		return errors.New("statecontract: decode_diff must not be nil")
	case c.IsDiffEmpty == nil:
		return errors.New("statecontract: is_diff_empty must not be nil")
	}
	return nil
}
