package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"capfolio/internal/logger"
)

// Runner ticks the automation pass on a cron schedule.
type Runner struct {
	cron *cron.Cron
	auto *Automation
}

// NewRunner registers the automation pass under the given cron spec
// (e.g. "@every 15m", "0 * * * *").
func NewRunner(spec string, auto *Automation) (*Runner, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		events := auto.Run(context.Background())
		triggered := 0
		for _, ev := range events {
			if ev.Triggered {
				triggered++
			}
		}
		logger.Infof("automation pass done: %d evaluations, %d triggered", len(events), triggered)
	})
	if err != nil {
		return nil, err
	}
	return &Runner{cron: c, auto: auto}, nil
}

func (r *Runner) Start() {
	r.cron.Start()
	logger.Infof("automation runner started")
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	logger.Infof("automation runner stopped")
}
