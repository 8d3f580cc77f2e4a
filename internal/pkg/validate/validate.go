// Package validate provides the shared struct validator.
package validate

import (
	"net/url"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validate returns the process wide validator. Besides the built in tags it
// knows "snapshot_url", a URL whose scheme names a snapshot backend.
func Validate() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		_ = instance.RegisterValidation("snapshot_url", func(fl validator.FieldLevel) bool {
			u, err := url.Parse(fl.Field().String())
			if err != nil {
				return false
			}
			switch u.Scheme {
			case "sqlite", "sqlite3", "postgres", "postgresql", "redis", "rediss":
				return true
			}
			return false
		})
	})
	return instance
}
