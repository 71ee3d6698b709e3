package config

import (
	"os"
	"reflect"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	ConfigParamTag = "param"
	EnvVarPrefix   = "CHAINAUDIT"
)

// Viper instance with defaults and CHAINAUDIT_ environment binding. Keys use dashes and dots,
// the matching variable of "ledger.rpc-url" is CHAINAUDIT_LEDGER_RPC_URL.
func NewViper() (vpr *viper.Viper) {
	vpr = viper.New()
	for key, value := range Defaults() {
		vpr.SetDefault(key, value)
	}
	vpr.SetEnvPrefix(EnvVarPrefix)
	vpr.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vpr.AutomaticEnv()
	return
}

// Load a .env file into the process environment, a missing file is not an error
func LoadDotEnv(path string) (err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return
	}
	if err = godotenv.Load(path); err != nil {
		err = errors.Wrapv(err, "unable to load env file", path)
	}
	return
}

// Merge a YAML config file. Keys that do not map to a config field are rejected.
func MergeInConfigFile(vpr *viper.Viper, cfgFile string) (err error) {
	fileVpr := viper.New()
	fileVpr.SetConfigFile(cfgFile)
	if err = fileVpr.ReadInConfig(); err != nil {
		err = errors.Wrapv(err, "unable to read config file", cfgFile)
		return
	}

	var metadata mapstructure.Metadata
	var probe AppConfig
	if err = fileVpr.Unmarshal(&probe, configureDecode(&metadata)); err != nil {
		err = errors.Wrapv(err, "unable to decode config file", cfgFile)
		return
	}
	if len(metadata.Unused) > 0 {
		err = errors.Errorv("there are extra values in your config", metadata.Unused)
		return
	}

	if err = vpr.MergeConfigMap(fileVpr.AllSettings()); err != nil {
		err = errors.Wrapv(err, "unable to merge config file", cfgFile)
	}
	return
}

// Decode and validate
func Build(vpr *viper.Viper) (result *AppConfig, err error) {
	result = &AppConfig{}
	if err = Decode(vpr, result); err != nil {
		result = nil
		return
	}
	if err = result.Validate(); err != nil {
		err = errors.WithMessage(err, "invalid config")
		result = nil
	}
	return
}

func Decode(vpr *viper.Viper, cfg *AppConfig) (err error) {
	decoderConfig := &mapstructure.DecoderConfig{Result: cfg}
	configureDecode(nil)(decoderConfig)

	var decoder *mapstructure.Decoder
	if decoder, err = mapstructure.NewDecoder(decoderConfig); err != nil {
		return errors.Wrap(err, "unable to create config decoder")
	}

	// AllSettings resolves env and flag overrides for every known key
	if err = decoder.Decode(vpr.AllSettings()); err != nil {
		err = errors.Wrap(err, "unable to decode config")
	}
	return
}

func configureDecode(metadata *mapstructure.Metadata) func(c *mapstructure.DecoderConfig) {
	return func(c *mapstructure.DecoderConfig) {
		c.TagName = ConfigParamTag
		c.Metadata = metadata
		c.WeaklyTypedInput = true
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			StringToSliceHookFunc,
		)
	}
}

// Space separated strings become slices, "bandit -f json" is a three element command
func StringToSliceHookFunc(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
		return data, nil
	}
	raw := data.(string)
	if raw == "" {
		return []string{}, nil
	}
	return strings.Fields(raw), nil
}
