package am

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teranos/ldschema/errors"
)

var structValidator = newStructValidator()

// newStructValidator reports fields by their mapstructure names so messages
// read like config keys.
func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration is valid. Struct tags cover ranges;
// the checks below cover fields that depend on each other.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return errors.Wrap(errors.ErrInvalidRequest, "invalid config: "+strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, "invalid config")
	}

	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "invalid config: cache.redis_url is required when cache.backend is redis")
	}

	if c.Policy.BlocklistPath != "" && !strings.HasSuffix(c.Policy.BlocklistPath, ".toml") {
		return errors.Wrapf(errors.ErrInvalidRequest, "invalid config: policy.blocklist_path must be a .toml file, got %q", c.Policy.BlocklistPath)
	}

	return nil
}

// describeFieldError renders a validator error with the config key instead of the Go field path
func describeFieldError(fe validator.FieldError) string {
	key := configKey(fe.Namespace())
	if fe.Param() != "" {
		return key + " failed " + fe.Tag() + "=" + fe.Param()
	}
	return key + " failed " + fe.Tag()
}

// configKey maps "Config.completion.max_attempts" to "completion.max_attempts"
func configKey(namespace string) string {
	return strings.TrimPrefix(namespace, "Config.")
}
