package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Command modes accepted by Validate.
const (
	ModeUpdate = "update"
	ModeLoad   = "load"
	ModeServe  = "serve"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report keys the way they are written in config.yaml
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			return fld.Name
		}
		return tag
	})
	return v
}

// Validate checks the configuration for the given command mode and reports
// every problem found at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	switch mode {
	case ModeUpdate, ModeLoad:
	case ModeServe:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return ns + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", ns, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s layout", ns, fe.Param())
	case "min", "gte", "gt":
		return fmt.Sprintf("%s must be %s %s", ns, map[string]string{"min": ">=", "gte": ">=", "gt": ">"}[fe.Tag()], fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be <= %s", ns, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", ns, fe.Tag())
	}
}
