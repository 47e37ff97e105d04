package logger

// Config controls log output.
type Config struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`    // megabytes
	MaxAge      int    `mapstructure:"max_age"`     // days
	MaxBackups  int    `mapstructure:"max_backups"` // rotated files kept
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
}

// DefaultConfig returns console-only logging at info level.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}
