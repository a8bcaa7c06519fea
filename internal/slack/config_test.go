package slack

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCortex_Slack_LoadFromEnv(t *testing.T) {
	// Save original env vars
	originalEnv := map[string]string{}
	envVars := []string{
		"SLACK_BOT_TOKEN",
		"SLACK_APP_TOKEN",
		"SLACK_SIGNING_SECRET",
		"AGENT_ENDPOINT",
		"ANTHROPIC_API_KEY",
		"CLICKHOUSE_ADDR",
		"CLICKHOUSE_DATABASE",
		"CLICKHOUSE_USERNAME",
		"CLICKHOUSE_PASSWORD",
		"ENTITLEMENT_TABLE",
		"ENTITLEMENT_USER_COLUMN",
		"ENTITLEMENT_REP_COLUMN",
		"ENTITLEMENT_ENTITY_COLUMN",
		"CHART_SERVICE_URL",
	}

	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
		os.Unsetenv(key)
	}

	t.Cleanup(func() {
		// Restore original env vars
		for key, value := range originalEnv {
			if value != "" {
				os.Setenv(key, value)
			} else {
				os.Unsetenv(key)
			}
		}
	})

	setRequired := func() {
		os.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
		os.Setenv("AGENT_ENDPOINT", "http://localhost:8600")
		os.Setenv("ANTHROPIC_API_KEY", "sk-test")
		os.Setenv("CLICKHOUSE_ADDR", "localhost:9000")
		os.Setenv("CLICKHOUSE_DATABASE", "default")
		os.Setenv("CLICKHOUSE_USERNAME", "default")
		os.Setenv("CLICKHOUSE_PASSWORD", "")
	}

	tests := []struct {
		name            string
		setupEnv        func()
		modeFlag        string
		httpAddrFlag    string
		metricsAddrFlag string
		verbose         bool
		enablePprof     bool
		wantErr         bool
		errContains     string
		checkConfig     func(*testing.T, *Config)
	}{
		{
			name: "socket mode with all required vars",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
			},
			modeFlag: "socket",
			checkConfig: func(t *testing.T, cfg *Config) {
				require.Equal(t, ModeSocket, cfg.Mode)
				require.Equal(t, "xoxb-test", cfg.BotToken)
				require.Equal(t, "xapp-test", cfg.AppToken)
				require.Equal(t, "http://localhost:8600", cfg.AgentEndpoint)
				require.Equal(t, "sk-test", cfg.AnthropicAPIKey)
				require.Equal(t, "localhost:9000", cfg.ClickhouseAddr)
				require.Equal(t, "default", cfg.ClickhouseDatabase)
				require.Equal(t, "default", cfg.ClickhouseUsername)
				require.Equal(t, "", cfg.ClickhousePassword)
				require.Equal(t, "", cfg.EntitlementTable)
				require.Equal(t, "", cfg.ChartServiceURL)
			},
		},
		{
			name: "http mode with all required vars",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_SIGNING_SECRET", "secret")
			},
			modeFlag: "http",
			checkConfig: func(t *testing.T, cfg *Config) {
				require.Equal(t, ModeHTTP, cfg.Mode)
				require.Equal(t, "secret", cfg.SigningSecret)
			},
		},
		{
			name: "auto-detect socket mode",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
			},
			modeFlag: "",
			checkConfig: func(t *testing.T, cfg *Config) {
				require.Equal(t, ModeSocket, cfg.Mode)
			},
		},
		{
			name: "auto-detect http mode",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_SIGNING_SECRET", "secret")
			},
			modeFlag: "",
			checkConfig: func(t *testing.T, cfg *Config) {
				require.Equal(t, ModeHTTP, cfg.Mode)
			},
		},
		{
			name: "missing bot token",
			setupEnv: func() {
				setRequired()
				os.Unsetenv("SLACK_BOT_TOKEN")
			},
			modeFlag:    "socket",
			wantErr:     true,
			errContains: "SLACK_BOT_TOKEN is required",
		},
		{
			name: "missing app token for socket mode",
			setupEnv: func() {
				setRequired()
			},
			modeFlag:    "socket",
			wantErr:     true,
			errContains: "SLACK_APP_TOKEN is required for socket mode",
		},
		{
			name: "missing signing secret for http mode",
			setupEnv: func() {
				setRequired()
			},
			modeFlag:    "http",
			wantErr:     true,
			errContains: "SLACK_SIGNING_SECRET is required for HTTP mode",
		},
		{
			name: "missing agent endpoint",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
				os.Unsetenv("AGENT_ENDPOINT")
			},
			modeFlag:    "socket",
			wantErr:     true,
			errContains: "AGENT_ENDPOINT is required",
		},
		{
			name: "missing anthropic key",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
				os.Unsetenv("ANTHROPIC_API_KEY")
			},
			modeFlag:    "socket",
			wantErr:     true,
			errContains: "ANTHROPIC_API_KEY is required",
		},
		{
			name: "missing ClickHouse address",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
				os.Unsetenv("CLICKHOUSE_ADDR")
			},
			modeFlag:    "socket",
			wantErr:     true,
			errContains: "CLICKHOUSE_ADDR is required",
		},
		{
			name: "invalid mode",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
			},
			modeFlag:    "invalid",
			wantErr:     true,
			errContains: "mode must be 'socket' or 'http'",
		},
		{
			name: "entitlement column defaults",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
				os.Setenv("ENTITLEMENT_TABLE", "sales_hierarchy")
			},
			modeFlag: "socket",
			checkConfig: func(t *testing.T, cfg *Config) {
				require.Equal(t, "sales_hierarchy", cfg.EntitlementTable)
				require.Equal(t, "slack_user_id", cfg.EntitlementUserColumn)
				require.Equal(t, "rep_name", cfg.EntitlementRepColumn)
				require.Equal(t, "SALES_REP", cfg.EntitlementEntityColumn)
			},
		},
		{
			name: "flags are set correctly",
			setupEnv: func() {
				setRequired()
				os.Setenv("SLACK_APP_TOKEN", "xapp-test")
				os.Setenv("CHART_SERVICE_URL", "http://localhost:8700")
			},
			modeFlag:        "socket",
			httpAddrFlag:    "0.0.0.0:3000",
			metricsAddrFlag: "0.0.0.0:8080",
			verbose:         true,
			enablePprof:     true,
			checkConfig: func(t *testing.T, cfg *Config) {
				require.Equal(t, "0.0.0.0:3000", cfg.HTTPAddr)
				require.Equal(t, "0.0.0.0:8080", cfg.MetricsAddr)
				require.Equal(t, "http://localhost:8700", cfg.ChartServiceURL)
				require.True(t, cfg.Verbose)
				require.True(t, cfg.EnablePprof)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			// Don't run subtests in parallel - they modify shared environment variables
			// Clean up env before each test
			for _, key := range envVars {
				os.Unsetenv(key)
			}

			if tt.setupEnv != nil {
				tt.setupEnv()
			}

			cfg, err := LoadFromEnv(tt.modeFlag, tt.httpAddrFlag, tt.metricsAddrFlag, tt.verbose, tt.enablePprof)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					require.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				if tt.checkConfig != nil {
					tt.checkConfig(t, cfg)
				}
			}
		})
	}
}
