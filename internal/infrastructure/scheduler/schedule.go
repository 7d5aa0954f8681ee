package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions and descriptors like @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSchedule is a Schedule backed by a parsed cron expression.
type CronSchedule struct {
	expr  string
	sched cron.Schedule
}

// ParseCron parses a 5-field cron expression ("*/15 * * * *", "@hourly").
func ParseCron(expr string) (*CronSchedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, sched: sched}, nil
}

// Next implements Schedule.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.sched.Next(t)
}

// String implements Schedule.
func (c *CronSchedule) String() string {
	return c.expr
}

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next implements Schedule.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String implements Schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
