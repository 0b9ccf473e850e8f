package handler

import (
	"reflect"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// RegisterValidators teaches gin's validator about decimal amounts.
// Decimals validate as their canonical string, so "required" means present
// and "dgte=N" compares numerically.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	return v.RegisterValidation("dgte", decimalGTE)
}

func decimalValue(field reflect.Value) interface{} {
	d, ok := field.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	return d.String()
}

func decimalGTE(fl validator.FieldLevel) bool {
	minimum, err := decimal.NewFromString(fl.Param())
	if err != nil {
		return false
	}
	field := fl.Field()
	switch field.Kind() {
	case reflect.String:
		d, err := decimal.NewFromString(field.String())
		return err == nil && d.GreaterThanOrEqual(minimum)
	case reflect.Int, reflect.Int32, reflect.Int64:
		return decimal.NewFromInt(field.Int()).GreaterThanOrEqual(minimum)
	case reflect.Float32, reflect.Float64:
		return decimal.NewFromFloat(field.Float()).GreaterThanOrEqual(minimum)
	}
	return false
}
