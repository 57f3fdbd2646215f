// Package config はirismlコマンドの実行設定を読み込みます。
//
// 優先順位は フラグ > 環境変数 (IRISML_*) > 設定ファイル > デフォルト値 です。
package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/irisml/pkg/errors"
)

// EnvPrefix は環境変数の接頭辞
const EnvPrefix = "IRISML"

// Config はパイプライン1回分の実行設定
type Config struct {
	LogFile           string  `mapstructure:"log_file" validate:"required"`
	LogLevel          string  `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	TestSize          float64 `mapstructure:"test_size" validate:"gt=0,lt=1"`
	RandomState       uint64  `mapstructure:"random_state"`
	MaxIter           int     `mapstructure:"max_iter" validate:"gte=1"`
	C                 float64 `mapstructure:"c" validate:"gt=0"`
	AccuracyThreshold float64 `mapstructure:"accuracy_threshold" validate:"gte=0,lte=1"`
	// Report は評価結果の表を標準出力に書く
	Report bool `mapstructure:"report"`
	// Plot が空でなければテストセットの散布図をPNGで保存する
	Plot string `mapstructure:"plot"`
}

// Default は元のスクリプトと同じ定数を返す
func Default() Config {
	return Config{
		LogFile:           "iris_app.log",
		LogLevel:          "debug",
		TestSize:          0.2,
		RandomState:       42,
		MaxIter:           200,
		C:                 1.0,
		AccuracyThreshold: 0.7,
	}
}

// flagNames は設定キーとコマンドラインフラグの対応
var flagNames = map[string]string{
	"log_file":           "log-file",
	"log_level":          "log-level",
	"test_size":          "test-size",
	"random_state":       "random-state",
	"max_iter":           "max-iter",
	"c":                  "c",
	"accuracy_threshold": "accuracy-threshold",
	"report":             "report",
	"plot":               "plot",
}

// RegisterFlags は設定を上書きするフラグをfsに登録する
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("log-file", d.LogFile, "append-mode log file")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.Float64("test-size", d.TestSize, "fraction of samples held out for evaluation")
	fs.Uint64("random-state", d.RandomState, "seed of the train/test shuffle")
	fs.Int("max-iter", d.MaxIter, "maximum solver iterations")
	fs.Float64("c", d.C, "inverse L2 regularization strength")
	fs.Float64("accuracy-threshold", d.AccuracyThreshold, "accuracy below this value is logged as a warning")
	fs.Bool("report", false, "print the evaluation report to stdout")
	fs.String("plot", "", "write a scatter plot of the test set to this PNG file")
}

// SetDefaults はviperにデフォルト値を登録する
// AutomaticEnv はデフォルトが登録されたキーしか Unmarshal しないため必須
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("test_size", d.TestSize)
	v.SetDefault("random_state", d.RandomState)
	v.SetDefault("max_iter", d.MaxIter)
	v.SetDefault("c", d.C)
	v.SetDefault("accuracy_threshold", d.AccuracyThreshold)
	v.SetDefault("report", d.Report)
	v.SetDefault("plot", d.Plot)
}

// BindFlags は明示的に指定されたフラグだけが他の設定源より優先されるよう
// フラグを設定キーに結び付ける
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagNames {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag --%s", name)
		}
	}
	return nil
}

// Load はデフォルト、設定ファイル、環境変数の順に読み込み、検証済みの設定を返す
// configFile が空の場合は設定ファイルを読まない
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %q", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// エラーメッセージには設定キー名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate は値の範囲を検証し、最初の違反を ValidationError として返す
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "failed " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return errors.NewValidationError(fe.Field(), reason, fe.Value())
	}
	return errors.Wrap(err, "validate config")
}
