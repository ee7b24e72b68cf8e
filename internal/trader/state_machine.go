package trader

import "p2pdesk/internal/models"

// ValidTransitions определяет допустимые переходы статуса сделки.
// Жизненный цикл монотонный, прыжки вперёд разрешены: опрос площадки
// может пропустить промежуточный статус между двумя циклами.
// Терминальные статусы переходов не имеют.
var ValidTransitions = map[string][]string{
	models.TxStatusPending: {
		models.TxStatusWaitingPayment,
		models.TxStatusPaymentReceived,
		models.TxStatusCompleted,
		models.TxStatusCancelled,
		models.TxStatusFailed,
	},
	models.TxStatusWaitingPayment: {
		models.TxStatusPaymentReceived,
		models.TxStatusCompleted,
		models.TxStatusCancelled,
		models.TxStatusFailed,
	},
	models.TxStatusPaymentReceived: {
		models.TxStatusCompleted,
		models.TxStatusCancelled,
		models.TxStatusFailed,
	},
	models.TxStatusCompleted: {},
	models.TxStatusCancelled: {},
	models.TxStatusFailed:    {},
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

// StatusInfo возвращает описание статуса сделки для UI
func StatusInfo(s string) string {
	switch s {
	case models.TxStatusPending:
		return "Ордер создан, ждём реакцию площадки"
	case models.TxStatusWaitingPayment:
		return "Ожидание фиатного перевода контрагента"
	case models.TxStatusPaymentReceived:
		return "Платёж отмечен, проверяем поступление"
	case models.TxStatusCompleted:
		return "Актив отпущен, сделка закрыта"
	case models.TxStatusCancelled:
		return "Сделка отменена"
	case models.TxStatusFailed:
		return "Сделка завершилась ошибкой, нужен оператор"
	default:
		return "Неизвестный статус"
	}
}
