package config

import "time"

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRequestsPerSecond() float64
	GetRequestBurst() int
	GetRememberLogin() bool
}

type API struct {
	BaseURL           string        `mapstructure:"baseurl"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requestspersecond"` // 0 disables client side throttling
	Burst             int           `mapstructure:"burst"`
	RememberLogin     bool          `mapstructure:"rememberlogin"`
}

var _ APIConfig = API{}

// GetBaseURL returns the backend base URL (e.g., "https://api.flashybank.com")
func (a API) GetBaseURL() string {
	return a.BaseURL
}

func (a API) GetRequestTimeout() time.Duration {
	return a.Timeout
}

func (a API) GetRequestsPerSecond() float64 {
	return a.RequestsPerSecond
}

func (a API) GetRequestBurst() int {
	if a.Burst < 1 {
		return 1
	}
	return a.Burst
}

// GetRememberLogin reports whether a successful login is kept for biometric re-login.
func (a API) GetRememberLogin() bool {
	return a.RememberLogin
}
