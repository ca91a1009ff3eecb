package scheduler

import "errors"

// ErrInvalidSchedule — расписание нельзя вычислить.
var ErrInvalidSchedule = errors.New("invalid schedule")
