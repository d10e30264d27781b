package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads path (if it exists) over DefaultConfig, then lets ENVREPAIR_*
// environment variables override any leaf key, the same precedence order
// this file documents (file over defaults, env over file).
// A missing path is not an error — it just means "defaults + env only".
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, err
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ENVREPAIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	setDefaults(v)
	return v
}

// bindEnvKeys walks Config via reflection and binds every leaf mapstructure
// path to its ENVREPAIR_* env var, so new keys never need a matching
// hand-written BindEnv call.
func bindEnvKeys(v *viper.Viper) {
	for _, path := range leafPaths(reflect.TypeOf(Config{}), "") {
		envVar := "ENVREPAIR_" + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
		_ = v.BindEnv(path, envVar)
	}
}

func leafPaths(t reflect.Type, prefix string) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var paths []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		full := tag
		if prefix != "" {
			full = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Duration(0)) {
			paths = append(paths, leafPaths(ft, full)...)
			continue
		}
		paths = append(paths, full)
	}
	return paths
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	for _, path := range leafPaths(reflect.TypeOf(Config{}), "") {
		v.SetDefault(path, fieldValue(reflect.ValueOf(d), path))
	}
}

// fieldValue walks dotted path through v's struct fields and returns the
// value found there, used to seed viper defaults from DefaultConfig()
// without hand-maintaining a parallel literal default map.
func fieldValue(v reflect.Value, path string) interface{} {
	for _, part := range strings.Split(path, ".") {
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		found := false
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).Tag.Get("mapstructure") == part {
				v = v.Field(i)
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}
	return v.Interface()
}
