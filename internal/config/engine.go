package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/penalty"
	"github.com/spf13/viper"
)

// EngineConfig holds the penalty engine settings.
type EngineConfig struct {
	SettlementCurrency model.CurrencyCode
	DiscountVariant    penalty.DiscountVariant
	AdjusterMode       penalty.AdjusterMode
	SubjectMode        penalty.SubjectCurrencyMode
	// Rounding is the number of decimal places used when the converter
	// cannot round amounts itself.
	Rounding int32
}

// DefaultEngineConfig settles in NUC with two decimal places.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SettlementCurrency: model.NUC,
		DiscountVariant:    penalty.DiscountVariantBase,
		AdjusterMode:       penalty.AdjustFareComponent,
		SubjectMode:        penalty.SubjectCurrencyDefault,
		Rounding:           2,
	}
}

// Validate checks the settings.
func (c EngineConfig) Validate() error {
	cur := string(c.SettlementCurrency)
	if len(cur) != 3 || strings.ToUpper(cur) != cur {
		return fmt.Errorf("%w: settlement currency %q must be a three-letter code", common.ErrInvalidConfig, cur)
	}
	if c.Rounding < 0 || c.Rounding > 6 {
		return fmt.Errorf("%w: rounding %d must be between 0 and 6", common.ErrInvalidConfig, c.Rounding)
	}
	return nil
}

// LoadEngineConfig loads the engine settings from Viper and environment variables.
// It follows this precedence:
// 1. Viper configuration (from config file or REXPENALTY_ env vars)
// 2. Direct environment variables (REXPENALTY_CURRENCY, REXPENALTY_ROUNDING)
// 3. Default values
func LoadEngineConfig() (*EngineConfig, error) {
	config := DefaultEngineConfig()

	currency := viper.GetString("engine.settlement_currency")
	if currency == "" {
		currency = os.Getenv("REXPENALTY_CURRENCY")
	}
	if currency != "" {
		config.SettlementCurrency = model.CurrencyCode(strings.ToUpper(currency))
	}

	if v := viper.GetString("engine.discount_variant"); v != "" {
		config.DiscountVariant = penalty.DiscountVariant(v)
	}
	if _, err := penalty.NewDiscountApplier(config.DiscountVariant, model.Passenger{}); err != nil {
		return nil, err
	}

	mode, err := penalty.ParseAdjusterMode(viper.GetString("engine.adjuster_mode"))
	if err != nil {
		return nil, err
	}
	config.AdjusterMode = mode

	subject, err := penalty.ParseSubjectCurrencyMode(viper.GetString("engine.subject_currency_mode"))
	if err != nil {
		return nil, err
	}
	config.SubjectMode = subject

	switch {
	case viper.IsSet("engine.rounding"):
		config.Rounding = int32(viper.GetInt("engine.rounding"))
	case os.Getenv("REXPENALTY_ROUNDING") != "":
		n, err := strconv.Atoi(os.Getenv("REXPENALTY_ROUNDING"))
		if err != nil {
			return nil, fmt.Errorf("%w: REXPENALTY_ROUNDING: %v", common.ErrInvalidConfig, err)
		}
		config.Rounding = int32(n)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
