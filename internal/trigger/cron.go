package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений из пяти полей.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron проверяет валидность cron-выражения.
func ValidateCron(expr string) error {
	_, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextCron вычисляет следующее время по cron-выражению в часовом поясе tz.
// Возвращает время в UTC для хранения в БД.
func NextCron(expr string, from time.Time, tz string) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		// Fallback на UTC если timezone невалидный
		loc = time.UTC
	}

	return schedule.Next(from.In(loc)).UTC(), nil
}
