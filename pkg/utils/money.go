package utils

import (
	"github.com/shopspring/decimal"
)

// money.go - денежная арифметика для P2P-торговли
//
// Назначение:
// Вспомогательные функции для расчёта цен объявлений и сверки сумм.
// Все суммы - decimal.Decimal, float64 для денег не используется.
// Все функции являются чистыми (pure functions) без побочных эффектов.

// ApplyPremium считает цену float-объявления от рыночной цены.
//
// Премия задаётся в процентах ОТ рыночной цены (формат биржи):
// 100 = рыночная цена, 102.5 = на 2.5% выше рынка, 98 = на 2% ниже.
//
// Параметры:
//   - market: рыночная цена за единицу актива
//   - premiumPct: премия в процентах от рынка
//
// Возвращает:
//   - Цену объявления; при market <= 0 или premiumPct <= 0 возвращает ноль
//
// Примеры:
//   - ApplyPremium(100, 102.5) = 102.5
//   - ApplyPremium(79.80, 100) = 79.80
func ApplyPremium(market, premiumPct decimal.Decimal) decimal.Decimal {
	if market.LessThanOrEqual(decimal.Zero) || premiumPct.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return market.Mul(premiumPct).Div(decimal.NewFromInt(100))
}

// RoundToTick округляет цену ВНИЗ до шага цены биржи.
//
// Округление вниз гарантирует, что объявление не окажется дороже
// рассчитанной цены.
//
// Параметры:
//   - price: исходная цена
//   - tick: минимальный шаг цены (например 0.01)
//
// Возвращает:
//   - Цену, кратную tick; при tick <= 0 возвращает исходную цену
//
// Примеры:
//   - RoundToTick(102.567, 0.01) = 102.56
//   - RoundToTick(79.999, 0.1) = 79.9
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.LessThanOrEqual(decimal.Zero) {
		return price
	}
	return price.Div(tick).Floor().Mul(tick)
}

// AbsDiff возвращает абсолютную разницу двух сумм.
func AbsDiff(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}

// WithinTolerance проверяет равенство сумм с допуском.
//
// Используется сверкой платежей: сумма из уведомления банка может
// отличаться от суммы выплаты на копейки (комиссии, округление банка).
//
// Параметры:
//   - a, b: сравниваемые суммы
//   - tolerance: максимальная допустимая разница (>= 0)
//
// Возвращает:
//   - true если |a - b| <= tolerance
//
// Примеры:
//   - WithinTolerance(1000, 1000, 0) = true
//   - WithinTolerance(1000, 1000.49, 0.5) = true
//   - WithinTolerance(1000, 1001, 0.5) = false
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	if tolerance.IsNegative() {
		return false
	}
	return AbsDiff(a, b).LessThanOrEqual(tolerance)
}

// ClampAmount ограничивает сумму диапазоном [min, max].
//
// Применяется к лимитам ордера объявления: биржа отклоняет объявления
// с minAmount/maxAmount вне допустимого диапазона платёжного метода.
func ClampAmount(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}
