package model_test

import (
	"testing"
	"time"

	"github.com/CZERTAINLY/sensord/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	for _, tc := range []struct {
		expr string
		want time.Duration
	}{
		{"* * * * *", time.Minute},
		{"0 * * * *", time.Hour},
		{"@daily", 24 * time.Hour},
		{"@every 90s", 90 * time.Second},
	} {
		t.Run(tc.expr, func(t *testing.T) {
			s, err := model.ParseCron(tc.expr)
			require.NoError(t, err)
			require.Equal(t, tc.want, model.CronInterval(s, now))
		})
	}

	for _, expr := range []string{"", "  ", "* * * *", "0 0 0 * * *", "@sometimes"} {
		_, err := model.ParseCron(expr)
		require.Error(t, err, expr)
	}
}

func TestParseISODuration(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Duration
	}{
		{"PT1H", time.Hour},
		{"P1D", 24 * time.Hour},
		{"P1DT2H30M", 26*time.Hour + 30*time.Minute},
		{"PT0.5S", 500 * time.Millisecond},
		{"PT1,25S", 1250 * time.Millisecond},
		{"PT15M", 15 * time.Minute},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := model.ParseISODuration(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	for _, in := range []string{"", "P", "PT", "P1DT", "1H", "P1H", "PT-1H", "P1Y"} {
		_, err := model.ParseISODuration(in)
		require.ErrorIs(t, err, model.ErrISOFormat, in)
	}
}
