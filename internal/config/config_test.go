package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 60*time.Second {
					t.Errorf("expected WSReadTimeout 60s, got %v", cfg.WSReadTimeout)
				}
				if cfg.NegativeStreakThreshold != 3 {
					t.Errorf("expected streak threshold 3, got %d", cfg.NegativeStreakThreshold)
				}
				if cfg.AlertPolicy != AlertPolicySingle {
					t.Errorf("expected alert policy single, got %s", cfg.AlertPolicy)
				}
				if cfg.QAThreshold != 80 {
					t.Errorf("expected QA threshold 80, got %v", cfg.QAThreshold)
				}
				if cfg.ReaperInterval != 60*time.Second {
					t.Errorf("expected reaper interval 60s, got %v", cfg.ReaperInterval)
				}
				if cfg.InactivityThreshold != 300*time.Second {
					t.Errorf("expected inactivity threshold 300s, got %v", cfg.InactivityThreshold)
				}
				if cfg.PurgeGrace != 5*time.Second {
					t.Errorf("expected purge grace 5s, got %v", cfg.PurgeGrace)
				}
				if cfg.DirectoryRefresh != 5*time.Minute {
					t.Errorf("expected directory refresh 5m, got %v", cfg.DirectoryRefresh)
				}
				if cfg.TranscriptQueue != "call_transcripts" || cfg.SummaryQueue != "call_summaries" {
					t.Errorf("unexpected queue names %s/%s", cfg.TranscriptQueue, cfg.SummaryQueue)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":             "9000",
				"LOG_LEVEL":        "debug",
				"WS_READ_TIMEOUT":  "30",
				"WS_WRITE_TIMEOUT": "5",
				"ALLOWED_ORIGINS":  "http://example.com,http://test.com",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("expected log level debug, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 30*time.Second {
					t.Errorf("expected WSReadTimeout 30s, got %v", cfg.WSReadTimeout)
				}
				if cfg.WSWriteTimeout != 5*time.Second {
					t.Errorf("expected WSWriteTimeout 5s, got %v", cfg.WSWriteTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 {
					t.Errorf("expected 2 allowed origins, got %d", len(cfg.AllowedOrigins))
				}
			},
		},
		{
			name: "invalid WS_READ_TIMEOUT",
			env: map[string]string{
				"WS_READ_TIMEOUT": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid WS_WRITE_TIMEOUT",
			env: map[string]string{
				"WS_WRITE_TIMEOUT": "invalid",
			},
			wantErr: true,
		},
		{
			name: "repeat alert policy",
			env: map[string]string{
				"ALERT_POLICY":              "REPEAT",
				"NEGATIVE_STREAK_THRESHOLD": "4",
				"QA_THRESHOLD":              "72.5",
				"INACTIVITY_THRESHOLD":      "120",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.AlertPolicy != AlertPolicyRepeat {
					t.Errorf("expected alert policy repeat, got %s", cfg.AlertPolicy)
				}
				if cfg.NegativeStreakThreshold != 4 {
					t.Errorf("expected streak threshold 4, got %d", cfg.NegativeStreakThreshold)
				}
				if cfg.QAThreshold != 72.5 {
					t.Errorf("expected QA threshold 72.5, got %v", cfg.QAThreshold)
				}
				if cfg.InactivityThreshold != 2*time.Minute {
					t.Errorf("expected inactivity threshold 2m, got %v", cfg.InactivityThreshold)
				}
			},
		},
		{
			name: "unknown ALERT_POLICY",
			env: map[string]string{
				"ALERT_POLICY": "sometimes",
			},
			wantErr: true,
		},
		{
			name: "zero NEGATIVE_STREAK_THRESHOLD",
			env: map[string]string{
				"NEGATIVE_STREAK_THRESHOLD": "0",
			},
			wantErr: true,
		},
		{
			name: "invalid REAPER_INTERVAL",
			env: map[string]string{
				"REAPER_INTERVAL": "soon",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Load config
			cfg, err := Load()

			// Check error
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Run custom checks
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestWebSocketConstants(t *testing.T) {
	// Clear environment and set clean defaults
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// PongWait should equal WSReadTimeout
	if cfg.PongWait != cfg.WSReadTimeout {
		t.Errorf("PongWait (%v) should equal WSReadTimeout (%v)", cfg.PongWait, cfg.WSReadTimeout)
	}

	// PingPeriod should be less than PongWait
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("PingPeriod (%v) should be less than PongWait (%v)", cfg.PingPeriod, cfg.PongWait)
	}

	// WriteWait should equal WSWriteTimeout
	if cfg.WriteWait != cfg.WSWriteTimeout {
		t.Errorf("WriteWait (%v) should equal WSWriteTimeout (%v)", cfg.WriteWait, cfg.WSWriteTimeout)
	}

	// MaxMessageSize should be set
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize should be positive, got %d", cfg.MaxMessageSize)
	}
}
