package app

import (
	"fmt"
	"os"

	"chatrelay/pkg/config"
	"chatrelay/pkg/retention"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, CHATRELAY_DB_PATH env, or server.db_path in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// blob settings are all-or-nothing: a bucket without a region or
	// endpoint fails at upload time in a confusing way, so reject it here
	b := eff.Config.Blob
	if b.Bucket != "" && b.Region == "" && b.Endpoint == "" {
		return fmt.Errorf("blob.bucket is set but neither blob.region nor blob.endpoint is configured")
	}
	if (b.AccessKeyID == "") != (b.SecretAccessKey == "") {
		return fmt.Errorf("incomplete blob credentials: set both blob.access_key_id and blob.secret_access_key")
	}

	if eff.Config.Retention.Enabled {
		if _, err := retention.ParsePeriod(eff.Config.Retention.Period); err != nil {
			return err
		}
	}

	return nil
}
