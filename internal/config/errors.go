package config

import "errors"

// ErrLoadConfig wraps failures reading the YAML file, the dotenv file or the
// environment. ErrInvalidConfig wraps settings that fail Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
