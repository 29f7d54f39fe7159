// Package common — errors.go определяет таксономию ошибок ядра.
// Ошибки аутентификации, матчмейкинга и экономики — это sentinel-значения
// типизированных ошибок: errors.Is сравнивает по виду (Kind), а Error()
// возвращает текст, который можно сразу показать игроку.
package common

import "fmt"

// ErrorKind — вид ошибки внутри категории.
type ErrorKind string

// Виды ошибок аутентификации
const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindEmailUnconfirmed   ErrorKind = "email_unconfirmed"
	KindEmailTaken         ErrorKind = "email_taken"
	KindUsernameTaken      ErrorKind = "username_taken"
	KindNotAGuest          ErrorKind = "not_a_guest"
	KindNotSignedIn        ErrorKind = "not_signed_in"
	KindInvalidInput       ErrorKind = "invalid_input"
)

// Виды ошибок матчмейкинга
const (
	KindAccountLocked       ErrorKind = "account_locked"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindGameNotFound        ErrorKind = "game_not_found"
	KindRoomNotFound        ErrorKind = "room_not_found"
	KindRoomFull            ErrorKind = "room_full"
)

// Виды ошибок экономики
const (
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindGuestWithdrawal   ErrorKind = "guest_withdrawal"
	KindInvalidAmount     ErrorKind = "invalid_amount"
)

// AuthError — ошибка входа, регистрации или смены типа аккаунта.
type AuthError struct {
	Kind    ErrorKind
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Is сравнивает ошибки по виду, текст может отличаться.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// MatchError — ошибка входа в матчмейкинг.
type MatchError struct {
	Kind    ErrorKind
	Message string
}

func (e *MatchError) Error() string { return e.Message }

func (e *MatchError) Is(target error) bool {
	t, ok := target.(*MatchError)
	return ok && t.Kind == e.Kind
}

// EconomyError — ошибка денежной операции.
// Вывод средств не бросает её, а кладёт в WithdrawResult.Reason.
type EconomyError struct {
	Kind    ErrorKind
	Message string
}

func (e *EconomyError) Error() string { return e.Message }

func (e *EconomyError) Is(target error) bool {
	t, ok := target.(*EconomyError)
	return ok && t.Kind == e.Kind
}

// StorageError — сбой локального хранилища или удалённого бэкенда при сохранении.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage оборачивает ошибку хранилища, nil остаётся nil.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Ошибки аутентификации
var (
	// ErrInvalidCredentials — нет такого email или пароль не совпал
	ErrInvalidCredentials = &AuthError{KindInvalidCredentials, "Invalid email or password. Please check your credentials and try again."}
	// ErrEmailUnconfirmed — бэкенд требует подтвердить почту
	ErrEmailUnconfirmed = &AuthError{KindEmailUnconfirmed, "Please check your email and click the confirmation link before signing in."}
	// ErrEmailTaken — email уже зарегистрирован
	ErrEmailTaken = &AuthError{KindEmailTaken, "An account with this email already exists. Please sign in instead."}
	// ErrUsernameTaken — имя пользователя занято
	ErrUsernameTaken = &AuthError{KindUsernameTaken, "Username is already taken. Please choose a different username."}
	// ErrNotAGuest — апгрейд доступен только гостю
	ErrNotAGuest = &AuthError{KindNotAGuest, "Not a guest account"}
	// ErrNotSignedIn — операция требует активной сессии
	ErrNotSignedIn = &AuthError{KindNotSignedIn, "You must be signed in to do that"}
)

// InvalidInput создаёт ошибку валидации с конкретным текстом.
func InvalidInput(message string) error {
	return &AuthError{Kind: KindInvalidInput, Message: message}
}

// Ошибки матчмейкинга
var (
	// ErrAccountLocked — долг достиг порога блокировки
	ErrAccountLocked = &MatchError{KindAccountLocked, "Account locked due to debt over $10"}
	// ErrInsufficientBalance — баланс меньше минимальной ставки игры
	ErrInsufficientBalance = &MatchError{KindInsufficientBalance, "Insufficient balance"}
	// ErrGameNotFound — игры нет в каталоге
	ErrGameNotFound = &MatchError{KindGameNotFound, "Game not found"}
	// ErrRoomNotFound — нет комнаты с таким кодом
	ErrRoomNotFound = &MatchError{KindRoomNotFound, "Room not found"}
	// ErrRoomFull — все места в комнате заняты
	ErrRoomFull = &MatchError{KindRoomFull, "This room is already full. Try another room or wait for a spot to open."}
)

// Ошибки экономики
var (
	// ErrInsufficientFunds — не хватает на сумму вывода с комиссией
	ErrInsufficientFunds = &EconomyError{KindInsufficientFunds, "Insufficient funds for this withdrawal"}
	// ErrGuestWithdrawal — гостям вывод недоступен
	ErrGuestWithdrawal = &EconomyError{KindGuestWithdrawal, "Guest accounts cannot withdraw. Create an account first."}
	// ErrInvalidAmount — сумма ноль или отрицательная
	ErrInvalidAmount = &EconomyError{KindInvalidAmount, "Amount must be positive"}
)
