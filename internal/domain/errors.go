package domain

import "errors"

var (
	// ErrPersistence возвращается, когда хранилище недоступно или отклонило запрос.
	ErrPersistence = errors.New("persistence error")

	// ErrPlaybackUnavailable возвращается, пока рендерер не подключил анимацию.
	ErrPlaybackUnavailable = errors.New("playback unavailable")

	// ErrSubscription возвращается при обрыве подписки на ленту изменений.
	ErrSubscription = errors.New("subscription error")

	// ErrInvalidAmount возвращается для неположительной суммы.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrDuplicateCapture возвращается при повторной доставке одного и того же платежа.
	ErrDuplicateCapture = errors.New("capture already processed")

	// ErrInvalidTimeRange возвращается для неизвестного диапазона статистики.
	ErrInvalidTimeRange = errors.New("invalid time range")
)
