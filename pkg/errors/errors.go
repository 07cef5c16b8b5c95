package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
// 可直接作为哨兵错误，配合 fmt.Errorf("%w") 包装后用 Is 判断。
type Definition struct {
	Code    string
	Message string
}

// 输入校验错误，不产生任何副作用。
var (
	ValidationError   = Definition{Code: "VALIDATION_ERROR", Message: "Invalid input"}
	InvalidRequest    = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	InvalidTransition = Definition{Code: "INVALID_TRANSITION", Message: "Reminder status transition not allowed"}
	Unauthorized      = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	TooManyRequests   = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please retry later"}
)

// 存储错误。
var (
	StoreUnavailable  = Definition{Code: "STORE_UNAVAILABLE", Message: "Record store temporarily unavailable"}
	ReminderDuplicate = Definition{Code: "REMINDER_DUPLICATE", Message: "Reminder already scheduled"}
	StateConflict     = Definition{Code: "STATE_CONFLICT", Message: "Reminder already transitioned"}
)

// 推送网关校验错误，按校验顺序排列。
var (
	MessageEmpty       = Definition{Code: "MESSAGE_EMPTY", Message: "Message is empty"}
	CredentialsMissing = Definition{Code: "CREDENTIALS_MISSING", Message: "Push credentials not configured"}
	RecipientMissing   = Definition{Code: "RECIPIENT_MISSING", Message: "No recipient and no default recipient configured"}
	RecipientMalformed = Definition{Code: "RECIPIENT_MALFORMED", Message: "Recipient identifier malformed"}
)

// 投递失败。
var (
	DeliveryTimeout   = Definition{Code: "DELIVERY_TIMEOUT", Message: "Push request timed out"}
	DeliveryTransport = Definition{Code: "DELIVERY_TRANSPORT", Message: "Push transport failure"}
	DeliveryRejected  = Definition{Code: "DELIVERY_REJECTED", Message: "Push provider rejected the message"}
)

// 基础设施错误。
var (
	ErrDatabaseConnectionNil = Definition{Code: "DATABASE_CONNECTION_NIL", Message: "Database connection is nil"}
	ErrMQConnectionNil       = Definition{Code: "MQ_CONNECTION_NIL", Message: "RabbitMQ connection is nil"}
	ErrBreakerOpen           = Definition{Code: "BREAKER_OPEN", Message: "Circuit breaker is open"}
	ErrInvalidToken          = Definition{Code: "INVALID_TOKEN", Message: "Invalid or expired token"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	ValidationError.Code:    ValidationError,
	InvalidRequest.Code:     InvalidRequest,
	InvalidTransition.Code:  InvalidTransition,
	Unauthorized.Code:       Unauthorized,
	TooManyRequests.Code:    TooManyRequests,
	StoreUnavailable.Code:   StoreUnavailable,
	ReminderDuplicate.Code:  ReminderDuplicate,
	StateConflict.Code:      StateConflict,
	MessageEmpty.Code:       MessageEmpty,
	CredentialsMissing.Code: CredentialsMissing,
	RecipientMissing.Code:   RecipientMissing,
	RecipientMalformed.Code: RecipientMalformed,
	DeliveryTimeout.Code:    DeliveryTimeout,
	DeliveryTransport.Code:  DeliveryTransport,
	DeliveryRejected.Code:   DeliveryRejected,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// Invalid 返回带说明的校验错误
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ValidationError, fmt.Sprintf(format, args...))
}

// Unavailable 将底层错误标记为存储不可用
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", StoreUnavailable, op, cause)
}

// IsValidation 是否属于输入校验类错误
func IsValidation(err error) bool {
	return Is(err, ValidationError) || Is(err, InvalidRequest) || Is(err, InvalidTransition) ||
		Is(err, MessageEmpty) || Is(err, CredentialsMissing) ||
		Is(err, RecipientMissing) || Is(err, RecipientMalformed)
}

// IsDelivery 是否属于投递失败
func IsDelivery(err error) bool {
	return Is(err, DeliveryTimeout) || Is(err, DeliveryTransport) || Is(err, DeliveryRejected)
}

// Code 提取错误链中第一个 Definition 的错误码
func Code(err error) string {
	var def Definition
	if As(err, &def) {
		return def.Code
	}
	return ""
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// SkipMessageError 表示消息已处理或无需处理，消费者应直接 ack
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return As(err, &skip)
}
