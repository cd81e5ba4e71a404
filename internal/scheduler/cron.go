package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser принимает пятипольные выражения и дескрипторы (@every 5s, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule разбирает расписание сборщика.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule, nil
}
