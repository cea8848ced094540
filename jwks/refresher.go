package jwks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher re-fetches remote key sets on a schedule so that provider key
// rotation is usually picked up before a verification miss forces it.
// Refresh failures are logged and leave the cached set untouched.
type Refresher struct {
	cron *cron.Cron
	log  logrus.FieldLogger
}

// NewRefresher creates an idle refresher. Call Add for each provider, then
// Start.
func NewRefresher(log logrus.FieldLogger) *Refresher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Refresher{cron: cron.New(), log: log}
}

// Add schedules a remote provider for periodic refresh. The schedule uses
// cron syntax, including the "@every 1h" form.
func (f *Refresher) Add(schedule string, r *Remote) error {
	_, err := f.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout+time.Second)
		defer cancel()
		if _, err := r.Refresh(ctx); err != nil {
			f.log.WithError(err).WithField("jwks_url", r.URL()).Warn("scheduled jwks refresh failed")
		}
	})
	return err
}

// Start begins running scheduled refreshes in the background.
func (f *Refresher) Start() { f.cron.Start() }

// Stop halts scheduling and waits for any running refresh to finish.
func (f *Refresher) Stop() {
	<-f.cron.Stop().Done()
}
