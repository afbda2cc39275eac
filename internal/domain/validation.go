package domain

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator возвращает общий валидатор входных данных с зарегистрированными правилами домена.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("calendar_date", validateCalendarDate)
		_ = validate.RegisterValidation("order_status", validateOrderStatus)
		_ = validate.RegisterValidation("priority", validatePriority)
	})
	return validate
}

// jsonFieldName подставляет в ошибки валидации имя поля из JSON.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func validateCalendarDate(fl validator.FieldLevel) bool {
	return ValidDate(fl.Field().String())
}

func validateOrderStatus(fl validator.FieldLevel) bool {
	return OrderStatus(fl.Field().String()).Valid()
}

func validatePriority(fl validator.FieldLevel) bool {
	return Priority(fl.Field().String()).Valid()
}

// Validate проверяет входные данные нового заказа.
func (n NewOrder) Validate() error {
	return Validator().Struct(n)
}

// Validate проверяет частичное обновление заказа.
func (p OrderPatch) Validate() error {
	return Validator().Struct(p)
}
