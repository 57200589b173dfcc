package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	BlugeFilepath   string        `env:"BLUGE_FILEPATH,required=true" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,default=*" validate:"required"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=500ms" validate:"gt=0"`
}

var validate = validator.New()

// Validate applies the struct rules after the environment unmarshal; a
// config error must abort startup before anything opens.
func Validate(c Config) error {
	return validate.Struct(c)
}

// CharacterRune enforces that the moderation mask is a single character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
