// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package config

const redacted = "***"

// Redacted returns a copy of cfg safe to print.
func (cfg AppConfig) Redacted() AppConfig {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Store.APIKey)
	mask(&cfg.Credentials.Password)
	mask(&cfg.Lease.RedisPassword)
	return cfg
}
