package conf

/*
   This package wraps viper for the PUB payments application. Configuration is
   sourced from an env file when one is present (local development) and from
   the process environment otherwise (deployed environments).

   Assumptions:
   1. The configuration file is an env file.
   2. Once loaded, configuration stays immutable for the life of the process
      (tests are the exception, via SetEnv/UnsetEnv).
*/

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"testing"

	"github.com/spf13/viper"
)

// An instance of the viper struct holding the loaded configuration. Only made
// accessible through the public functions GetEnv, SetEnv, etc.
var envVars viper.Viper

// Tracks whether a config file was found and parsed cleanly.
const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood

func setup(dir string) *viper.Viper {
	var v = viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	// Viper is lazy, do the read and parse of the config file now
	var err = v.ReadInConfig()

	if err != nil {
		state = configbad
	}

	return v
}

func init() {
	// Possible config file locations: local development and deployed
	// environments respectively.
	var locationSlice = [2]string{
		"shared_files/decrypted",
		"/etc/pub-payments",
	}

	if success, loc := findEnv(locationSlice[:]); success {
		envVars = *setup(loc)
	} else {
		state = noconfigfound
	}
}

func findEnv(location []string) (bool, string) {
	if _, err := os.Stat(location[0] + "/local.env"); err == nil {
		return true, location[0]
	}

	if len(location) == 1 {
		return false, ""
	}

	return findEnv(location[1:])
}

// GetEnv retrieves the value stored in conf. If it does not exist, the empty
// string is returned.
func GetEnv(key string) string {
	if state == configgood {
		var value = envVars.GetString(key)

		// Even if the config file loaded, a key missing from it may still be
		// set in the environment.
		if value == "" {
			var b bool
			value, b = os.LookupEnv(key)

			if b {
				// Copy it over to conf to prevent additional OS calls.
				test := &testing.T{}
				var _ = SetEnv(test, key, value)
			}
		}

		return value
	}

	return os.Getenv(key)
}

// LookupEnv augments os.LookupEnv to look in the viper struct first.
func LookupEnv(key string) (string, bool) {
	if state == configgood {
		if value := envVars.Get(key); value != nil && value != "" {
			return value.(string), true
		}

		if v, exist := os.LookupEnv(key); exist {
			test := &testing.T{}
			var _ = SetEnv(test, key, v)
			return v, exist
		}

		return "", false
	}

	return os.LookupEnv(key)
}

// SetEnv adds key values into conf. This function should only be used either
// in this package itself or in testing. The protect parameter is *testing.T to
// ensure developers knowingly use it in the appropriate scope.
func SetEnv(protect *testing.T, key string, value string) error {
	var err error

	if state == configgood {
		envVars.Set(key, value)
	} else {
		err = os.Setenv(key, value)
	}

	return err
}

// UnsetEnv "unsets" a variable. Like SetEnv, this should only be used either
// in this package itself or in testing.
func UnsetEnv(protect *testing.T, key string) error {
	var err error

	if state == configgood {
		envVars.Set(key, "")
	}

	// Unset the environment copy too, since GetEnv may have mirrored it.
	err = os.Unsetenv(key)

	return err
}

// Checkout loads configuration values into the provided struct pointer.
// Fields are matched by the `conf` tag, with `conf_default` supplying a value
// when the variable is unset. Supported field types are string, int, uint and
// bool; a nested struct is traversed recursively.
func Checkout(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("conf: Checkout requires a non-nil struct pointer, got %T", v)
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("conf: Checkout requires a struct pointer, got %T", v)
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, value := rt.Field(i), rv.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := Checkout(value.Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key, ok := field.Tag.Lookup("conf")
		if !ok {
			continue
		}

		raw := GetEnv(key)
		if raw == "" {
			raw = field.Tag.Get("conf_default")
		}
		if raw == "" {
			continue
		}

		switch field.Type.Kind() {
		case reflect.String:
			value.SetString(raw)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("conf: invalid value %q for %s: %w", raw, key, err)
			}
			value.SetInt(n)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("conf: invalid value %q for %s: %w", raw, key, err)
			}
			value.SetUint(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("conf: invalid value %q for %s: %w", raw, key, err)
			}
			value.SetBool(b)
		default:
			return fmt.Errorf("conf: unsupported field type %s for %s", field.Type.Kind(), key)
		}
	}

	return nil
}
