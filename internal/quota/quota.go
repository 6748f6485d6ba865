// Package quota содержит чистые вычисления месячной квоты в граммах.
// Все функции работают с миллиграммами (int64), чтобы арифметика книги
// потребления не зависела от плавающей точки.
package quota

import (
	"math"

	"github.com/mmeshcher/clubhouse-system/internal/model"
)

// DefaultMonthlyLimitGrams — системный лимит по умолчанию, если у клуба
// нет собственного ограничения.
const DefaultMonthlyLimitGrams = 40

const milligramsPerGram = 1000

// GramsToMilli переводит граммы в миллиграммы с округлением.
func GramsToMilli(grams float64) int64 {
	return int64(math.Round(grams * milligramsPerGram))
}

// MilliToGrams переводит миллиграммы обратно в граммы.
func MilliToGrams(milli int64) float64 {
	return float64(milli) / milligramsPerGram
}

// ValidGrams проверяет, что количество — положительное конечное число.
func ValidGrams(grams float64) bool {
	return grams > 0 && !math.IsNaN(grams) && !math.IsInf(grams, 0)
}

// ResolveLimitMilli определяет месячный лимит пользователя в миллиграммах.
// Неположительный лимит клуба — некорректная конфигурация: она не должна
// незаметно разрешать безлимитное потребление, поэтому трактуется как
// отсутствие лимита и заменяется системным значением по умолчанию.
func ResolveLimitMilli(clubOverride *float64) int64 {
	if clubOverride != nil && *clubOverride > 0 {
		return GramsToMilli(*clubOverride)
	}
	return DefaultMonthlyLimitGrams * milligramsPerGram
}

// Evaluate сравнивает запрошенное количество с остатком месячной квоты.
// used — уже занятые граммы месяца (зарезервированные + подтверждённые).
// Отрицательный остаток в вердикте обрезается до нуля: пользователю
// показывается, сколько реально доступно.
func Evaluate(limitMilli, usedMilli, requestedMilli int64) model.QuotaVerdict {
	availableMilli := limitMilli - usedMilli

	v := model.QuotaVerdict{
		Accepted:       requestedMilli <= availableMilli,
		MonthlyLimit:   MilliToGrams(limitMilli),
		UsedGrams:      MilliToGrams(usedMilli),
		RequestedGrams: MilliToGrams(requestedMilli),
	}

	if availableMilli < 0 {
		availableMilli = 0
	}
	v.AvailableGrams = MilliToGrams(availableMilli)

	if v.Accepted {
		after := MilliToGrams(availableMilli - requestedMilli)
		v.AvailableAfterOrder = &after
	}

	return v
}
