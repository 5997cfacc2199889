package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"viba-annotation-go/pkg/errs"
)

// requestValidator 校验请求结构体上的 validate 标签，字段名取 json 标签。
var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateRequest 执行结构体校验，并把第一个失败的字段转换为 ValidationError。
func validateRequest(req interface{}) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errs.Validation("Invalid request: %v", err)
	}
	return fieldError(verrs[0])
}

func fieldError(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return errs.Validation("Missing required field: %s", field)
	case "required_if":
		return errs.Validation("Missing required field: %s (required when %s)", field, requiredIfCondition(fe.Param()))
	case "oneof":
		return errs.Validation("Invalid %s: %v (expected one of %s)", field, fe.Value(), fe.Param())
	case "uuid":
		return errs.Validation("Invalid UUID format in %s: %q", field, fe.Value())
	case "gt":
		return errs.Validation("Invalid %s: %v (must be greater than %s)", field, fe.Value(), fe.Param())
	case "min":
		return errs.Validation("Invalid %s: must be at least %s", field, fe.Param())
	case "max":
		return errs.Validation("Invalid %s: must be at most %s", field, fe.Param())
	default:
		return errs.Validation("Invalid %s", field)
	}
}

// requiredIfCondition 将 "ReferenceType 1" 转换为 "reference_type is 1"
func requiredIfCondition(param string) string {
	parts := strings.Fields(param)
	if len(parts) != 2 {
		return param
	}
	return toSnake(parts[0]) + " is " + parts[1]
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeUUIDs 去除首尾空白并转为小写，dropBlank 为 true 时丢弃空值。
func normalizeUUIDs(ids []string, dropBlank bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" && dropBlank {
			continue
		}
		out = append(out, id)
	}
	return out
}
