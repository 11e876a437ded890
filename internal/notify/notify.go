package notify

import (
	"context"

	"go.uber.org/multierr"
)

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi fans a message out to every notifier and combines their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}
