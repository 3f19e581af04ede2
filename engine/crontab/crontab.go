// Package crontab runs callbacks on wall clock schedules written as "minute hour day month dayofweek".
//
// Each field is a number, * for any value, or */n for every n. Day of week is 0-7 with both 0 and 7 meaning Sunday.
// Callbacks run from goTimer, so they execute on the goroutine calling timer.Tick.
package crontab

import (
	"strconv"
	"strings"
	"time"

	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/pkg/errors"
	timer "github.com/xiaonanln/goTimer"
)

const (
	_CRONTAB_TIME_OFFSET = time.Second * 2
)

// Schedule is a parsed crontab spec, negative fields match every -n, -1 matches any value
type Schedule struct {
	minute, hour, day, month, dayofweek int
}

// Handle is the type of return value of Register, can be used to cancel the register
type Handle int

type entry struct {
	schedule Schedule
	cb       func()
}

// Table holds registered callbacks and checks them once a minute after Start
type Table struct {
	entries          map[Handle]*entry
	cancelledHandles []Handle
	nextHandle       Handle
	alignTimer       *timer.Timer
	repeatTimer      *timer.Timer
}

// New creates an empty crontab table
func New() *Table {
	return &Table{
		entries:    map[Handle]*entry{},
		nextHandle: 1,
	}
}

// Parse parses a five field crontab spec
func Parse(spec string) (Schedule, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return Schedule{}, errors.Errorf("crontab spec %q: expect 5 fields, got %d", spec, len(fields))
	}

	var values [5]int
	for i, field := range fields {
		v, err := parseField(field, i == 4)
		if err != nil {
			return Schedule{}, errors.Wrapf(err, "crontab spec %q", spec)
		}
		values[i] = v
	}
	s := Schedule{minute: values[0], hour: values[1], day: values[2], month: values[3], dayofweek: values[4]}
	return s, s.validate()
}

func parseField(field string, isDayOfWeek bool) (int, error) {
	if field == "*" {
		return -1, nil
	}
	if strings.HasPrefix(field, "*/") {
		if isDayOfWeek {
			return 0, errors.Errorf("day of week does not support %s", field)
		}
		n, err := strconv.Atoi(field[2:])
		if err != nil || n <= 0 {
			return 0, errors.Errorf("invalid step %s", field)
		}
		return -n, nil
	}
	n, err := strconv.Atoi(field)
	if err != nil || n < 0 {
		return 0, errors.Errorf("invalid value %s", field)
	}
	return n, nil
}

func (s Schedule) validate() error {
	if s.minute > 59 || s.minute < -60 {
		return errors.Errorf("invalid minute = %d", s.minute)
	}
	if s.hour > 23 || s.hour < -24 {
		return errors.Errorf("invalid hour = %d", s.hour)
	}
	if s.day > 31 || s.day < -31 || s.day == 0 {
		return errors.Errorf("invalid day = %d", s.day)
	}
	if s.month > 12 || s.month < -12 || s.month == 0 {
		return errors.Errorf("invalid month = %d", s.month)
	}
	if s.dayofweek > 7 || s.dayofweek < -1 {
		return errors.Errorf("invalid dayofweek = %d", s.dayofweek)
	}
	return nil
}

func matchField(want int, v int) bool {
	if want >= 0 {
		return want == v
	}
	return v%-want == 0
}

// Match checks if the schedule fires at the minute of t
func (s Schedule) Match(t time.Time) bool {
	if !matchField(s.minute, t.Minute()) || !matchField(s.hour, t.Hour()) ||
		!matchField(s.day, t.Day()) || !matchField(s.month, int(t.Month())) {
		return false
	}

	switch {
	case s.dayofweek < 0:
		return true
	case s.dayofweek == 0 || s.dayofweek == 7:
		return t.Weekday() == time.Sunday
	default:
		return s.dayofweek == int(t.Weekday())
	}
}

// Register a callback which will be executed when its schedule matches the current minute
func (t *Table) Register(spec string, cb func()) (Handle, error) {
	schedule, err := Parse(spec)
	if err != nil {
		return 0, err
	}

	h := t.nextHandle
	t.nextHandle++
	t.entries[h] = &entry{schedule: schedule, cb: cb}
	return h, nil
}

// Unregister a registered crontab handle, it is safe to call from a running callback
func (t *Table) Unregister(h Handle) {
	t.cancelledHandles = append(t.cancelledHandles, h)
}

// Len returns the number of registered callbacks
func (t *Table) Len() int {
	t.unregisterCancelledHandles()
	return len(t.entries)
}

func (t *Table) unregisterCancelledHandles() {
	for _, h := range t.cancelledHandles {
		gwlog.Debugf("crontab: cancelling %d", h)
		delete(t.entries, h)
	}
	t.cancelledHandles = nil
}

// Start checks the table a couple of seconds after every minute
func (t *Table) Start() {
	now := time.Now()
	sec := now.Second()
	var d time.Duration
	if time.Second*time.Duration(sec) < _CRONTAB_TIME_OFFSET {
		d = _CRONTAB_TIME_OFFSET - time.Second*time.Duration(sec)
	} else {
		d = time.Second*time.Duration(60-sec) + _CRONTAB_TIME_OFFSET
	}
	d -= time.Nanosecond * time.Duration(now.Nanosecond())

	gwlog.Debugf("crontab: current time is %s, first check after %s", now, d)
	t.alignTimer = timer.AddCallback(d, func() {
		t.repeatTimer = timer.AddTimer(time.Minute, func() {
			t.Check(time.Now())
		})
		t.Check(time.Now())
	})
}

// Stop cancels the timers started by Start
func (t *Table) Stop() {
	if t.alignTimer != nil {
		t.alignTimer.Cancel()
	}
	if t.repeatTimer != nil {
		t.repeatTimer.Cancel()
	}
}

// Check runs every callback matching now
func (t *Table) Check(now time.Time) {
	t.unregisterCancelledHandles()
	gwlog.Debugf("crontab: checking %d callbacks ...", len(t.entries))
	for _, entry := range t.entries {
		if entry.schedule.Match(now) {
			gwutils.RunPanicless(entry.cb)
		}
	}
	t.unregisterCancelledHandles()
}
