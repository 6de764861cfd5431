package domain

import "errors"

// ErrInvalidSignature — подпись вебхука не совпала.
var ErrInvalidSignature = errors.New("подпись вебхука недействительна")

// ErrStaleRequest — метка времени запроса вне допустимого окна.
var ErrStaleRequest = errors.New("метка времени запроса устарела")

// ErrInvalidRequest — некорректный тип или диапазон запроса сводки.
var ErrInvalidRequest = errors.New("некорректный запрос сводки")

// ErrAIRequestRejected — терминальный отказ LLM, повтор не поможет.
var ErrAIRequestRejected = errors.New("запрос к LLM отклонён")

// ErrAIServiceUnavailable — попытки вызова LLM исчерпаны.
var ErrAIServiceUnavailable = errors.New("сервис LLM недоступен")

// ErrSummaryNotFound — сводка не найдена.
var ErrSummaryNotFound = errors.New("сводка не найдена")

// ErrRenderNotReady — документ сводки ещё не построен.
var ErrRenderNotReady = errors.New("отчёт ещё не готов")

// ErrRenderFailed — рендеринг документа завершился ошибкой.
var ErrRenderFailed = errors.New("рендеринг отчёта не удался")

// ErrorKind возвращает стабильный код ошибки для API, чтобы вызывающая
// сторона могла показать конкретное сообщение.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrStaleRequest):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrAIRequestRejected):
		return "ai_rejected"
	case errors.Is(err, ErrAIServiceUnavailable):
		return "ai_unavailable"
	case errors.Is(err, ErrSummaryNotFound):
		return "not_found"
	case errors.Is(err, ErrRenderNotReady):
		return "render_pending"
	case errors.Is(err, ErrRenderFailed):
		return "render_failed"
	default:
		return "internal"
	}
}
