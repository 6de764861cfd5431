package summary

import (
	"fmt"
	"time"

	"slack-summarizer/internal/domain"
)

// ResolveWindow вычисляет полуинтервал [Start, End) для запроса сводки.
// Явный диапазон, если задан, полностью заменяет вычисляемый: EOD — с
// полуночи UTC текущего дня до now, EOW — с полуночи UTC понедельника
// текущей недели до now.
func ResolveWindow(req domain.SummaryRequest, now time.Time) (domain.Window, error) {
	now = now.UTC()

	if req.Start != nil || req.End != nil {
		if req.Start == nil || req.End == nil {
			return domain.Window{}, fmt.Errorf("%w: явный диапазон требует обеих границ", domain.ErrInvalidRequest)
		}
		start, end := req.Start.UTC(), req.End.UTC()
		if !start.Before(end) {
			return domain.Window{}, fmt.Errorf("%w: начало диапазона должно предшествовать концу", domain.ErrInvalidRequest)
		}
		return domain.Window{Start: start, End: end, ChannelIDs: req.ChannelIDs}, nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch req.Type {
	case domain.SummaryTypeEOD:
		return domain.Window{Start: midnight, End: now, ChannelIDs: req.ChannelIDs}, nil
	case domain.SummaryTypeEOW:
		// понедельник — начало недели; для воскресенья откат на шесть дней
		offset := int(now.Weekday()) - 1
		if offset < 0 {
			offset = 6
		}
		start := midnight.AddDate(0, 0, -offset)
		return domain.Window{Start: start, End: now, ChannelIDs: req.ChannelIDs}, nil
	default:
		return domain.Window{}, fmt.Errorf("%w: неизвестный тип сводки %q", domain.ErrInvalidRequest, req.Type)
	}
}
