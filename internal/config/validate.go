package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report fields by their dotted config path.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return yamlName(f)
	})
}

// Validate checks every field rule and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return engine.Wrap(engine.KindInvalidInput, "config", err)
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, describe(fe))
	}
	return &engine.Error{Kind: engine.KindInvalidInput, Op: "config", Reasons: reasons}
}

func describe(fe validator.FieldError) string {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", path, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", path, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", path, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", path, fe.Tag())
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
