package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// safeGroup is an errgroup whose goroutines turn panics into errors.
type safeGroup struct {
	group  *errgroup.Group
	logger *slog.Logger
}

func newSafeGroup(ctx context.Context, logger *slog.Logger) (*safeGroup, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &safeGroup{group: g, logger: logger}, ctx
}

// Go runs fn on a new goroutine. A panic cancels the group like an error.
func (sg *safeGroup) Go(name string, fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("goroutine panic recovered",
					"goroutine", name,
					"panic", r,
					"stack", string(debug.Stack()))
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		return fn()
	})
}

// Wait returns the first error of the group.
func (sg *safeGroup) Wait() error {
	return sg.group.Wait()
}
