package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const ConfigDirName string = "satchel"
const LogFileName string = "satchel.log"

type MintClientBackend string

const FAKE_MINT MintClientBackend = "FakeMint"
const REST_MINT MintClientBackend = "RestMint"

func StringToMintClientBackend(text string) MintClientBackend {
	switch text {
	case string(FAKE_MINT):
		return FAKE_MINT
	case string(REST_MINT):
		return REST_MINT
	default:
		return REST_MINT
	}
}

var (
	MINT_URL_ENV           = "MINT_URL"
	MINT_CLIENT_ENV        = "MINT_CLIENT"
	PORT_ENV               = "PORT"
	MODE_ENV               = "MODE"
	SWEEP_WINDOW_MIN_ENV    = "SWEEP_WINDOW_MINUTES"
	SWEEP_INTERVAL_MIN_ENV  = "SWEEP_INTERVAL_MINUTES"
	REFILL_INTERVAL_MIN_ENV = "REFILL_INTERVAL_MINUTES"
)

// Config is the process level configuration read from the environment. The
// reserve policy itself lives in the database, not here.
type Config struct {
	MINT_URL        string
	MINT_CLIENT     MintClientBackend
	PORT            string
	MODE            string
	SWEEP_WINDOW    time.Duration
	SWEEP_INTERVAL  time.Duration
	REFILL_INTERVAL time.Duration
}

func minutesFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	minutes, err := strconv.Atoi(value)
	if err != nil || minutes <= 0 {
		return 0, fmt.Errorf("invalid %v value: %v", key, value)
	}
	return time.Duration(minutes) * time.Minute, nil
}

func ConfigFromEnv() (Config, error) {
	config := Config{
		MINT_URL:    os.Getenv(MINT_URL_ENV),
		MINT_CLIENT: StringToMintClientBackend(os.Getenv(MINT_CLIENT_ENV)),
		PORT:        os.Getenv(PORT_ENV),
		MODE:        os.Getenv(MODE_ENV),
	}

	if config.PORT == "" {
		config.PORT = "8080"
	}

	window, err := minutesFromEnv(SWEEP_WINDOW_MIN_ENV, 15*time.Minute)
	if err != nil {
		return config, err
	}
	config.SWEEP_WINDOW = window

	interval, err := minutesFromEnv(SWEEP_INTERVAL_MIN_ENV, 5*time.Minute)
	if err != nil {
		return config, err
	}
	config.SWEEP_INTERVAL = interval

	refill, err := minutesFromEnv(REFILL_INTERVAL_MIN_ENV, 10*time.Minute)
	if err != nil {
		return config, err
	}
	config.REFILL_INTERVAL = refill

	return config, nil
}
