package models

// ClientConfig is the per-client verification configuration. Entries are
// loaded from the credentials file at startup and never mutated afterwards.
type ClientConfig struct {
	ID          string `json:"-"`
	CachePrefix string `json:"cache_prefix"`
	SMSTemplate string `json:"sms_template"`
	AppHash     string `json:"app_hash"`
	ForceOTP    string `json:"force_otp,omitempty"`
	Debug       bool   `json:"debug,omitempty"`
}
