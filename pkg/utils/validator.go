package utils

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных операторского API и конфигурации
// объявлений перед отправкой на биржу. Каждый валидатор возвращает error
// с описанием проблемы или nil.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Ошибки валидации
var (
	ErrInvalidAsset     = errors.New("invalid asset code")
	ErrInvalidFiat      = errors.New("invalid fiat currency code")
	ErrInvalidSide      = errors.New("side must be buy or sell")
	ErrInvalidPriceMode = errors.New("price mode must be fixed or float")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidWallet    = errors.New("invalid wallet or card number")
	ErrInvalidAPIKey    = errors.New("invalid API key format")
	ErrInvalidAPISecret = errors.New("invalid API secret format")
	ErrInvalidKeywords  = errors.New("template must have at least one keyword")
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	apiKeyPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)
	walletPattern   = regexp.MustCompile(`^[0-9]{4,32}$`)
)

// ValidateAsset проверяет код торгуемого актива (USDT, BTC).
//
// Допустимы 2-10 символов A-Z и цифры; регистр нормализуется.
func ValidateAsset(asset string) error {
	if !currencyPattern.MatchString(NormalizeCurrency(asset)) {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}
	return nil
}

// ValidateFiat проверяет код фиатной валюты (RUB, KZT).
func ValidateFiat(fiat string) error {
	if !currencyPattern.MatchString(NormalizeCurrency(fiat)) {
		return fmt.Errorf("%w: %q", ErrInvalidFiat, fiat)
	}
	return nil
}

// NormalizeCurrency приводит код валюты к формату биржи: верхний регистр
// без пробелов.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateSide проверяет сторону объявления.
func ValidateSide(side string) error {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "buy", "sell":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
}

// ValidatePriceMode проверяет режим ценообразования объявления.
func ValidatePriceMode(mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "fixed", "float":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPriceMode, mode)
	}
}

// ValidateAmount проверяет денежную сумму (> 0).
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateWallet проверяет номер кошелька или карты.
//
// Принимает 4-32 цифры; пробелы и дефисы форматирования удаляются
// перед проверкой (так банки присылают номера в уведомлениях).
func ValidateWallet(wallet string) error {
	if !walletPattern.MatchString(NormalizeWallet(wallet)) {
		return fmt.Errorf("%w: %q", ErrInvalidWallet, wallet)
	}
	return nil
}

// NormalizeWallet убирает пробелы и дефисы из номера кошелька/карты.
func NormalizeWallet(wallet string) string {
	replacer := strings.NewReplacer(" ", "", "-", "")
	return replacer.Replace(strings.TrimSpace(wallet))
}

// WalletSuffix возвращает последние n цифр нормализованного номера.
//
// Уведомления банков почти никогда не содержат номер целиком, только
// хвост ("*1234"). Сверка платежей сравнивает именно суффиксы.
//
// Возвращает пустую строку если цифр меньше n.
func WalletSuffix(wallet string, n int) string {
	normalized := NormalizeWallet(wallet)
	if n <= 0 || len(normalized) < n {
		return ""
	}
	return normalized[len(normalized)-n:]
}

// ValidateAPIKey выполняет базовую проверку формата API ключа.
//
// Минимум 16 символов: латиница, цифры, дефис, подчёркивание.
func ValidateAPIKey(apiKey string) error {
	if !apiKeyPattern.MatchString(apiKey) {
		return ErrInvalidAPIKey
	}
	return nil
}

// ValidateAPISecret проверяет формат API секрета.
//
// Минимум 16 символов; спецсимволы допустимы (секреты некоторых
// бирж содержат их).
func ValidateAPISecret(secret string) error {
	if len(secret) < 16 {
		return ErrInvalidAPISecret
	}
	return nil
}

// SplitKeywords разбирает строку ключевых слов шаблона.
//
// Формат хранения: слова через запятую ("paid, оплатил, перевел").
// Пустые элементы отбрасываются, регистр сохраняется (сопоставление
// выполняется без учёта регистра на стороне чата).
func SplitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := strings.TrimSpace(p); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// ValidateKeywords проверяет что у шаблона есть хотя бы одно ключевое слово.
func ValidateKeywords(raw string) error {
	if len(SplitKeywords(raw)) == 0 {
		return ErrInvalidKeywords
	}
	return nil
}

// ============================================================
// Композитная валидация
// ============================================================

// AdConfigValidation - поля заявки на создание объявления.
type AdConfigValidation struct {
	Side      string
	Asset     string
	Fiat      string
	PriceMode string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// ValidateAdConfig проверяет заявку на создание объявления целиком.
//
// Возвращает ValidationErrors со всеми найденными проблемами.
func ValidateAdConfig(cfg AdConfigValidation) error {
	var errs ValidationErrors

	errs.AddError("side", ValidateSide(cfg.Side))
	errs.AddError("asset", ValidateAsset(cfg.Asset))
	errs.AddError("fiat", ValidateFiat(cfg.Fiat))
	errs.AddError("price_mode", ValidatePriceMode(cfg.PriceMode))
	errs.AddError("price", ValidateAmount(cfg.Price))
	errs.AddError("quantity", ValidateAmount(cfg.Quantity))
	errs.AddError("min_amount", ValidateAmount(cfg.MinAmount))
	errs.AddError("max_amount", ValidateAmount(cfg.MaxAmount))

	if cfg.MinAmount.GreaterThan(cfg.MaxAmount) {
		errs.Add("min_amount", "min_amount exceeds max_amount")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ============================================================
// ValidationErrors
// ============================================================

// ValidationError - одна ошибка валидации с привязкой к полю.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors - набор ошибок валидации.
type ValidationErrors []ValidationError

// Add добавляет ошибку по полю.
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку если она не nil.
func (ve *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	ve.Add(field, err.Error())
}

// HasErrors сообщает, есть ли накопленные ошибки.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Error реализует интерфейс error.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// ============================================================
// Короткие bool-обёртки
// ============================================================

// IsValidWallet - bool-обёртка над ValidateWallet.
func IsValidWallet(wallet string) bool {
	return ValidateWallet(wallet) == nil
}

// IsValidAPIKey - bool-обёртка над ValidateAPIKey.
func IsValidAPIKey(apiKey string) bool {
	return ValidateAPIKey(apiKey) == nil
}

// IsValidSide - bool-обёртка над ValidateSide.
func IsValidSide(side string) bool {
	return ValidateSide(side) == nil
}
