//go:build !windows

package window

import "context"

type unsupported struct{}

// New returns the platform controller. Outside Windows it lists nothing and
// refuses activation.
func New() Controller {
	return unsupported{}
}

func (unsupported) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []Info{}, nil
}

func (unsupported) Activate(context.Context, uint64) error {
	return ErrUnsupported
}
