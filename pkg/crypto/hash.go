package crypto

// hash.go - хеширование операторских токенов
//
// Назначение:
// Bearer-токены операторского API хранятся в конфигурации только в виде
// bcrypt-хешей. Сравнение выполняется bcrypt-ом (constant-time), сырой
// токен нигде не сохраняется.

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptyToken    = errors.New("token cannot be empty")
	ErrTokenMismatch = errors.New("token does not match hash")
	ErrInvalidHash   = errors.New("invalid token hash format")
	ErrTokenTooLong  = errors.New("token exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость хеширования по умолчанию.
// Токен проверяется на каждый запрос API, поэтому cost ниже
// парольного: 10 даёт ~50мс на проверку.
const DefaultCost = 10

// MaxTokenLength - максимальная длина токена для bcrypt (72 байта)
const MaxTokenLength = 72

// HashToken хеширует операторский токен с использованием bcrypt.
// Автоматически генерирует криптографически стойкий salt.
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultCost)
}

// HashTokenWithCost хеширует токен с указанной стоимостью.
// cost вне диапазона bcrypt приводится к ближайшей границе.
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	// bcrypt ограничен 72 байтами
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyToken проверяет соответствие токена хешу.
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}

	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		// Невалидный формат хеша или другая ошибка
		return ErrInvalidHash
	}

	return nil
}

// CheckTokenMatch проверяет соответствие токена хешу и возвращает bool.
// Удобная обёртка для middleware.
func CheckTokenMatch(token, hash string) bool {
	return VerifyToken(token, hash) == nil
}

// GetHashCost извлекает cost из существующего хеша.
// Полезно для определения необходимости перехеширования при увеличении cost.
func GetHashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}

	return cost, nil
}

// NeedsRehash проверяет, нужно ли перехешировать токен.
// Возвращает true если текущий cost хеша меньше желаемого.
func NeedsRehash(hash string, desiredCost int) bool {
	currentCost, err := GetHashCost(hash)
	if err != nil {
		return true // При ошибке лучше перехешировать
	}
	return currentCost < desiredCost
}
