package models

// ValidTransitions определяет допустимые переходы между статусами ордера
var ValidTransitions = map[string][]string{
	StatusPending:         {StatusSubmitted, StatusCancelled, StatusRejected, StatusExpired},
	StatusSubmitted:       {StatusAccepted, StatusRejected, StatusCancelled, StatusExpired},
	StatusAccepted:        {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusRejected, StatusExpired, StatusSuspended},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusExpired, StatusSuspended}, // повторные частичные исполнения
	StatusSuspended:       {StatusAccepted}, // только ручное возобновление
	StatusFilled:          {},
	StatusCancelled:       {},
	StatusRejected:        {},
	StatusExpired:         {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case StatusPending:
		return "Ордер создан, ожидает отправки"
	case StatusSubmitted:
		return "Отправлен на площадку, ожидание подтверждения"
	case StatusAccepted:
		return "Принят площадкой"
	case StatusPartiallyFilled:
		return "Частично исполнен"
	case StatusFilled:
		return "Полностью исполнен"
	case StatusCancelled:
		return "Отменён"
	case StatusRejected:
		return "Отклонён"
	case StatusExpired:
		return "Истёк срок действия"
	case StatusSuspended:
		return "Приостановлен администратором"
	default:
		return "Неизвестный статус"
	}
}

// IsActiveStatus возвращает true если ордер допускает изменение и отмену
func IsActiveStatus(s string) bool {
	return s == StatusPending || s == StatusSubmitted || s == StatusAccepted || s == StatusPartiallyFilled
}

// IsTerminalStatus возвращает true если из статуса нет переходов
func IsTerminalStatus(s string) bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected || s == StatusExpired
}
