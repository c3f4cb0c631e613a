package config

type AppConfig interface {
	GetAppName() string
	GetEnv() string
}

type App struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

var _ AppConfig = App{}

func (a App) GetAppName() string {
	return a.Name
}

func (a App) GetEnv() string {
	return a.Environment
}
