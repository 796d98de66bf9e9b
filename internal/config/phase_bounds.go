package config

import (
	"fmt"
	"time"

	"github.com/hoangtvse170014/checkout/internal/phase"
)

// ToBounds converts the HH:MM phase boundaries into phase.Bounds (offsets
// from local midnight) and resolves the configured timezone.
func (p PhaseConfig) ToBounds() (phase.Bounds, *time.Location, error) {
	loc := time.Local
	if p.Timezone != "" && p.Timezone != "Local" {
		l, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return phase.Bounds{}, nil, fmt.Errorf("invalid phase.timezone %q: %w", p.Timezone, err)
		}
		loc = l
	}

	reset, err := hhmmToDuration(p.ResetTime)
	if err != nil {
		return phase.Bounds{}, nil, err
	}
	morningEnd, err := hhmmToDuration(p.MorningEnd)
	if err != nil {
		return phase.Bounds{}, nil, err
	}
	lunchStart, err := hhmmToDuration(p.LunchStart)
	if err != nil {
		return phase.Bounds{}, nil, err
	}
	afternoonStart, err := hhmmToDuration(p.AfternoonStart)
	if err != nil {
		return phase.Bounds{}, nil, err
	}
	dayClose, err := hhmmToDuration(p.DayCloseTime)
	if err != nil {
		return phase.Bounds{}, nil, err
	}

	return phase.Bounds{
		ResetTime:      reset,
		MorningEnd:     morningEnd,
		LunchStart:     lunchStart,
		AfternoonStart: afternoonStart,
		DayCloseTime:   dayClose,
	}, loc, nil
}

func hhmmToDuration(v string) (time.Duration, error) {
	hm, err := parseHHMM(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(hm.H)*time.Hour + time.Duration(hm.M)*time.Minute, nil
}
