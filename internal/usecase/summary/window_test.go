package summary

import (
	"errors"
	"testing"
	"time"

	"slack-summarizer/internal/domain"
)

func TestResolveWindow_EOD(t *testing.T) {
	now := time.Date(2025, 9, 29, 17, 3, 0, 0, time.UTC)
	win, err := ResolveWindow(domain.SummaryRequest{Type: domain.SummaryTypeEOD}, now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	wantStart := time.Date(2025, 9, 29, 0, 0, 0, 0, time.UTC)
	if !win.Start.Equal(wantStart) {
		t.Fatalf("ожидали начало %v, получили %v", wantStart, win.Start)
	}
	if !win.End.Equal(now) {
		t.Fatalf("ожидали конец %v, получили %v", now, win.End)
	}
}

func TestResolveWindow_EOW(t *testing.T) {
	cases := []struct {
		name      string
		now       time.Time
		wantStart time.Time
	}{
		{
			name:      "среда откатывается к понедельнику",
			now:       time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, 9, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "понедельник начинается с собственной полуночи",
			now:       time.Date(2025, 9, 29, 9, 30, 0, 0, time.UTC),
			wantStart: time.Date(2025, 9, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "воскресенье откатывается на шесть дней",
			now:       time.Date(2025, 10, 5, 20, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, 9, 29, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			win, err := ResolveWindow(domain.SummaryRequest{Type: domain.SummaryTypeEOW}, tc.now)
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if !win.Start.Equal(tc.wantStart) {
				t.Fatalf("ожидали начало %v, получили %v", tc.wantStart, win.Start)
			}
			if !win.End.Equal(tc.now) {
				t.Fatalf("ожидали конец %v, получили %v", tc.now, win.End)
			}
		})
	}
}

func TestResolveWindow_ExplicitRangeOverridesType(t *testing.T) {
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)
	win, err := ResolveWindow(domain.SummaryRequest{
		Type:  domain.SummaryTypeEOD,
		Start: &start,
		End:   &end,
	}, time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !win.Start.Equal(start) || !win.End.Equal(end) {
		t.Fatalf("явный диапазон не применился: %v — %v", win.Start, win.End)
	}
}

func TestResolveWindow_InvalidRange(t *testing.T) {
	start := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	_, err := ResolveWindow(domain.SummaryRequest{
		Type:  domain.SummaryTypeEOD,
		Start: &start,
		End:   &end,
	}, time.Now())
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("ожидали ErrInvalidRequest, получили %v", err)
	}

	_, err = ResolveWindow(domain.SummaryRequest{Type: domain.SummaryTypeEOD, Start: &start}, time.Now())
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("ожидали ErrInvalidRequest для одной границы, получили %v", err)
	}

	_, err = ResolveWindow(domain.SummaryRequest{Type: "monthly"}, time.Now())
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("ожидали ErrInvalidRequest для неизвестного типа, получили %v", err)
	}
}
