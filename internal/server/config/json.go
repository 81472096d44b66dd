package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/flagx"
	"github.com/dmitrijs2005/stellarkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the -c file. Durations accept "90s"
// style strings or nanoseconds. Fields left out of the file do not touch
// the running Config.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	MetricsAddr                  string         `json:"metrics_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`

	Network      string         `json:"network"`
	HorizonURL   string         `json:"horizon_url"`
	RPCURL       string         `json:"rpc_url"`
	BaseFee      int64          `json:"base_fee"`
	TxTimeout    timex.Duration `json:"tx_timeout"`
	PollInterval timex.Duration `json:"poll_interval"`
	PollTimeout  timex.Duration `json:"poll_timeout"`
	HTTPTimeout  timex.Duration `json:"http_timeout"`

	HomeDomain        string `json:"home_domain"`
	WebAuthEndpoint   string `json:"web_auth_endpoint"`
	WebAuthDomain     string `json:"web_auth_domain"`
	AnchorSigningKey  string `json:"anchor_signing_key"`
	TransferServerURL string `json:"transfer_server"`

	FundingSecret   string `json:"funding_secret"`
	StartingBalance string `json:"starting_balance"`

	TokenStrategy string         `json:"token_strategy"`
	TokenTTL      timex.Duration `json:"token_ttl"`

	RedisAddr           string `json:"redis_addr"`
	NotificationChannel string `json:"notification_channel"`
	OpsEmail            string `json:"ops_email"`
	AppName             string `json:"app_name"`

	LogFormat           string  `json:"log_format"`
	SerializePerAccount *bool   `json:"serialize_per_account"`
	RateLimit           float64 `json:"rate_limit"`
	RateBurst           int     `json:"rate_burst"`
}

// parseJSON overlays the file named by -c / -config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	c := &JsonConfig{}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.apply(cfg)
	return nil
}

func (c *JsonConfig) apply(cfg *Config) {
	setString(&cfg.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&cfg.MetricsAddr, c.MetricsAddr)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setDuration(&cfg.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&cfg.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&cfg.S3RootUser, c.S3RootUser)
	setString(&cfg.S3RootPassword, c.S3RootPassword)
	setString(&cfg.S3Bucket, c.S3Bucket)
	setString(&cfg.S3Region, c.S3Region)
	setString(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&cfg.Network, c.Network)
	setString(&cfg.HorizonURL, c.HorizonURL)
	setString(&cfg.RPCURL, c.RPCURL)
	if c.BaseFee != 0 {
		cfg.BaseFee = c.BaseFee
	}
	setDuration(&cfg.TxTimeout, c.TxTimeout)
	setDuration(&cfg.PollInterval, c.PollInterval)
	setDuration(&cfg.PollTimeout, c.PollTimeout)
	setDuration(&cfg.HTTPTimeout, c.HTTPTimeout)

	setString(&cfg.HomeDomain, c.HomeDomain)
	setString(&cfg.WebAuthEndpoint, c.WebAuthEndpoint)
	setString(&cfg.WebAuthDomain, c.WebAuthDomain)
	setString(&cfg.AnchorSigningKey, c.AnchorSigningKey)
	setString(&cfg.TransferServerURL, c.TransferServerURL)

	setString(&cfg.FundingSecret, c.FundingSecret)
	setString(&cfg.StartingBalance, c.StartingBalance)

	setString(&cfg.TokenStrategy, c.TokenStrategy)
	setDuration(&cfg.TokenTTL, c.TokenTTL)

	setString(&cfg.RedisAddr, c.RedisAddr)
	setString(&cfg.NotificationChannel, c.NotificationChannel)
	setString(&cfg.OpsEmail, c.OpsEmail)
	setString(&cfg.AppName, c.AppName)

	setString(&cfg.LogFormat, c.LogFormat)
	if c.SerializePerAccount != nil {
		cfg.SerializePerAccount = *c.SerializePerAccount
	}
	if c.RateLimit != 0 {
		cfg.RateLimit = c.RateLimit
	}
	if c.RateBurst != 0 {
		cfg.RateBurst = c.RateBurst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
