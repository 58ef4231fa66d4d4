package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/valter-silva-au/knc/pkg/models"
)

// validate is the shared struct validator. Field names in errors are the
// JSON names, and fields are reported in declaration order with the
// embedded BaseConfig first.
var validate *validator.Validate

// cronParser accepts standard five-field expressions and descriptors such as @daily.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister("entitykind", func(fl validator.FieldLevel) bool {
		return models.EntityKind(fl.Field().String()).Valid()
	})
	mustRegister("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cronParser.Parse(fl.Field().String())
		return err == nil
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

// Validate checks a record against the base rules and the rules of its
// variant. It returns an empty list when the record is valid and never
// mutates cfg.
func Validate(cfg models.Config) []models.FieldError {
	if cfg == nil {
		return []models.FieldError{{Field: "variant", Message: "config is nil"}}
	}

	errs := []models.FieldError{}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []models.FieldError{{Field: "", Message: err.Error()}}
		}
		for _, fe := range verrs {
			errs = append(errs, models.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
	}

	if want := models.VariantOf(cfg); cfg.Base().Variant != want {
		mismatch := models.FieldError{
			Field:   "variant",
			Message: fmt.Sprintf("variant %q does not match a %s record", cfg.Base().Variant, want),
		}
		errs = insertAfterBase(errs, mismatch)
	}
	return errs
}

// ValidatePartial validates a partial record given as JSON-named fields.
// Values that cannot be decoded into the variant's field types are reported
// against their field.
func ValidatePartial(variant models.ConfigVariant, fields models.Fields) []models.FieldError {
	cfg, err := models.ZeroConfig(variant)
	if err != nil {
		return []models.FieldError{{Field: "variant", Message: err.Error()}}
	}
	merged, err := models.MergeFields(cfg, stripProtected(fields))
	if err != nil {
		return []models.FieldError{decodeFieldError(err)}
	}
	return Validate(merged)
}

// ValidatePatch validates the record that results from applying fields to
// existing, as Update would. existing is not modified.
func ValidatePatch(existing models.Config, fields models.Fields) []models.FieldError {
	if existing == nil {
		return Validate(nil)
	}
	if raw, ok := fields["variant"]; ok && models.ConfigVariant(fmt.Sprint(raw)) != existing.Base().Variant {
		return []models.FieldError{{Field: "variant", Message: "variant cannot be changed"}}
	}
	merged, err := models.MergeFields(existing, stripProtected(fields))
	if err != nil {
		return []models.FieldError{decodeFieldError(err)}
	}
	return Validate(merged)
}

// insertAfterBase places e after the leading errors for base fields.
func insertAfterBase(errs []models.FieldError, e models.FieldError) []models.FieldError {
	i := 0
	for i < len(errs) && isBaseField(errs[i].Field) {
		i++
	}
	errs = append(errs, models.FieldError{})
	copy(errs[i+1:], errs[i:])
	errs[i] = e
	return errs
}

func isBaseField(field string) bool {
	switch field {
	case "id", "name", "description", "enabled", "tags", "createdAt", "updatedAt":
		return true
	}
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "entitykind":
		kinds := make([]string, len(models.EntityKinds))
		for i, k := range models.EntityKinds {
			kinds[i] = string(k)
		}
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(kinds, ", "))
	case "cronspec":
		return fmt.Sprintf("%s is not a valid cron expression", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func decodeFieldError(err error) models.FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return models.FieldError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type.Kind()),
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, "unknown field "); i >= 0 {
		field := strings.Trim(msg[i+len("unknown field "):], `"`)
		return models.FieldError{Field: field, Message: fmt.Sprintf("%s is not a known field", field)}
	}
	return models.FieldError{Field: "", Message: msg}
}
