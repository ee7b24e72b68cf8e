package utils

import (
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Вспомогательные функции для временных операций: окна сверки платежей,
// миллисекундные метки биржи, агрегация журнала сверки по дням.

// ============================================================
// Утилиты для timestamp
// ============================================================

// UnixMillis возвращает текущее время в миллисекундах Unix.
// Формат временных меток P2P API биржи.
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis конвертирует миллисекунды Unix в time.Time (UTC)
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ============================================================
// Временные диапазоны
// ============================================================

// TimeRange представляет временной диапазон
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон (границы включительно)
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает продолжительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// WindowAfter возвращает диапазон [start, start+d].
//
// Окно сверки платежа: подтверждение банка принимается только
// в течение d после создания выплаты.
//
// Параметры:
//   - start: момент начала окна (создание выплаты)
//   - d: длительность окна
//
// Возвращает: диапазон; при d <= 0 возвращает пустой диапазон [start, start]
func WindowAfter(start time.Time, d time.Duration) TimeRange {
	if d <= 0 {
		return TimeRange{Start: start, End: start}
	}
	return TimeRange{Start: start, End: start.Add(d)}
}

// ============================================================
// Границы периодов
// ============================================================

// GetDayStart возвращает начало текущего дня (00:00:00) в UTC
//
// Пример:
//
//	// Сейчас: 2024-01-15 14:30:45 UTC
//	start := GetDayStart()
//	// start: 2024-01-15 00:00:00 UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
//
// Параметры:
//   - t: исходное время
//
// Возвращает: начало дня (00:00:00 UTC) для указанной даты
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEnd возвращает конец текущего дня (23:59:59.999999999) в UTC
func GetDayEnd() time.Time {
	return GetDayEndFrom(time.Now().UTC())
}

// GetDayEndFrom возвращает конец дня для указанного времени
func GetDayEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetDayRange возвращает диапазон текущего дня
func GetDayRange() TimeRange {
	return TimeRange{
		Start: GetDayStart(),
		End:   GetDayEnd(),
	}
}

// GetLastNDays возвращает диапазон последних n дней (включая сегодня)
func GetLastNDays(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: GetDayStartFrom(now.AddDate(0, 0, -(n - 1))),
		End:   GetDayEndFrom(now),
	}
}

// ============================================================
// Форматирование времени
// ============================================================

// FormatDuration форматирует продолжительность в человекочитаемый формат
//
// Примеры:
//   - "45s"
//   - "5m30s"
//   - "2h15m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		if minutes > 0 {
			return (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute).String()
		}
		return (time.Duration(hours) * time.Hour).String()
	}

	if minutes > 0 {
		if seconds > 0 {
			return (time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second).String()
		}
		return (time.Duration(minutes) * time.Minute).String()
	}

	return (time.Duration(seconds) * time.Second).String()
}
