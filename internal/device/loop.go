package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/VittorioRossetto/dogTrainer/internal/session"
	"github.com/VittorioRossetto/dogTrainer/internal/vision"
)

// maxObserveErrors bounds consecutive source failures before the loop gives
// up; a stuck scanner otherwise returns the same error forever.
const maxObserveErrors = 5

// Loop steps the controller once per observation until the source is
// exhausted or ctx is cancelled. An isolated observation error is logged and
// the cycle runs with an empty observation so timeouts and cooldowns still
// advance; repeated errors mean the source is gone and the loop returns.
func Loop(ctx context.Context, src vision.Source, ctrl *session.Controller) error {
	failures := 0
	for {
		obs, err := src.Observe(ctx)
		switch {
		case errors.Is(err, io.EOF):
			log.Printf("[device] observation source closed")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		case err != nil:
			failures++
			if failures >= maxObserveErrors {
				return fmt.Errorf("observation source failing: %w", err)
			}
			log.Printf("[device] observation error: %v", err)
			obs = vision.Observation{}
			time.Sleep(100 * time.Millisecond)
		default:
			failures = 0
		}

		ctrl.Tick(time.Now(), obs)
	}
}
