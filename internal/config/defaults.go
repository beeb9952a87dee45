package config

const (
	defaultConfigPath        = "~/.config/cgmanager/config.toml"
	defaultDataDir           = "~/.local/share/cgmanager"
	defaultLogDir            = "~/.local/share/cgmanager/logs"
	defaultAPIBind           = "127.0.0.1:8250"
	defaultCasparHost        = "127.0.0.1"
	defaultCasparPort        = 5250
	defaultConnectTimeout    = 5
	defaultRequestTimeout    = 10
	defaultReconnectInterval = 5
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogFileLevel      = "debug"
)

// DefaultGroups is the group layout used for channels that declare none.
var DefaultGroups = []string{"background", "main", "overlay"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Caspar: Caspar{
			Host:              defaultCasparHost,
			Port:              defaultCasparPort,
			ConnectTimeout:    defaultConnectTimeout,
			RequestTimeout:    defaultRequestTimeout,
			ReconnectInterval: defaultReconnectInterval,
		},
		Channels: []Channel{
			{ID: 1, Groups: append([]string(nil), DefaultGroups...)},
		},
		Media: Media{
			RefreshOnConnect: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:     defaultLogLevel,
			FileLevel: defaultLogFileLevel,
		},
	}
}
