// Package validation содержит функции валидации входных данных.
package validation

import "net/mail"

// IsValidEmail проверяет синтаксическую корректность адреса почты.
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

// IsValidQuantity проверяет, что количество товара положительное.
func IsValidQuantity(quantity int) bool {
	return quantity > 0
}

// IsValidPercent проверяет, что агентский процент лежит в диапазоне 0–100.
func IsValidPercent(percent int) bool {
	return percent >= 0 && percent <= 100
}
