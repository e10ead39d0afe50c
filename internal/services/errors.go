package services

import "errors"

// --- Определения кастомных ошибок сервиса ---
var (
	ErrUnauthenticated     = errors.New("unauthenticated")                           // Нет или невалидный токен
	ErrForbidden           = errors.New("forbidden")                                 // userId не совпадает с токеном
	ErrInvalidInput        = errors.New("invalid input data")                        // Ошибка валидации входных данных
	ErrUnknownPrice        = errors.New("unknown price id")                          // Цена не из каталога
	ErrNotFound            = errors.New("not found")                                 // Объект не найден
	ErrStripeClient        = errors.New("stripe client error")                       // Ошибка взаимодействия со Stripe
	ErrIdentity            = errors.New("identity service error")                    // Ошибка identity-провайдера
	ErrInternalServer      = errors.New("internal server error")                     // Общая внутренняя ошибка
	ErrClientSecretMissing = errors.New("subscription has no payment client secret") // Stripe не вернул client_secret
	ErrInvalidSignature    = errors.New("invalid webhook signature")                 // Подпись webhook не прошла проверку
)
