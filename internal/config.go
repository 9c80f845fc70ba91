package internal

import (
	"fmt"
	"time"
)

type Config struct {
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,required=true"`
	CensoredWords     []string      `env:"CENSORED_WORDS,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	SweepInterval  time.Duration `env:"NOTIFICATION_SWEEP_INTERVAL,required=true"`
	HealthInterval time.Duration `env:"HEALTH_INTERVAL,required=true"`

	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath   string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel        string        `env:"LOG_LEVEL,required=true"`
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

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
