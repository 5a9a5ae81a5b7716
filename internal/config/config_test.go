package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Gmail: GmailConfig{
			ClientID:     "test",
			ClientSecret: "test",
			RefreshToken: "test",
		},
		Mailbox: MailboxConfig{
			QueryMode: QueryModeNewerThan,
			Timezone:  "UTC",
		},
		LLM: LLMConfig{
			APIKey: "key",
			Mode:   LLMModeExtract,
		},
		Trello: TrelloConfig{
			Key:    "k",
			Token:  "t",
			ListID: "l",
		},
		Pipeline: PipelineConfig{
			DelaySeconds: 30,
			MaxMessages:  10,
			StagingDir:   "data/projects",
		},
		Scheduler: SchedulerConfig{
			IntervalMinutes: 15,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	invalidConfig := &Config{
		Server: ServerConfig{
			Port: "",
		},
	}
	assert.Error(t, invalidConfig.Validate())
}

func TestConfigValidationRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"database enabled without host", func(c *Config) { c.Database.Enabled = true }},
		{"imap without credentials", func(c *Config) { c.Gmail.UseIMAP = true }},
		{"unknown query mode", func(c *Config) { c.Mailbox.QueryMode = "yesterday" }},
		{"bad timezone", func(c *Config) { c.Mailbox.Timezone = "Mars/Olympus" }},
		{"missing llm key", func(c *Config) { c.LLM.APIKey = "" }},
		{"unknown llm mode", func(c *Config) { c.LLM.Mode = "chat" }},
		{"missing trello list", func(c *Config) { c.Trello.ListID = "" }},
		{"delay too small", func(c *Config) { c.Pipeline.DelaySeconds = 1 }},
		{"delay too large", func(c *Config) { c.Pipeline.DelaySeconds = 301 }},
		{"max messages zero", func(c *Config) { c.Pipeline.MaxMessages = 0 }},
		{"interval too large", func(c *Config) { c.Scheduler.IntervalMinutes = 181 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestMissingTrelloSettingsAreNamed(t *testing.T) {
	c := validConfig()
	c.Trello = TrelloConfig{}

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRELLO_KEY")
	assert.Contains(t, err.Error(), "TRELLO_TOKEN")
	assert.Contains(t, err.Error(), "TRELLO_LIST_ID")
}

func TestDatabaseDSN(t *testing.T) {
	config := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	dsn := config.GetDSN()
	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, dsn)
}

func TestLoadConfigFromEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("TRELLO_KEY", "env-key")
	t.Setenv("TRELLO_TOKEN", "env-token")
	t.Setenv("TRELLO_LIST_ID", "env-list")
	t.Setenv("GROQ_API_KEY", "groq")
	t.Setenv("PIPELINE_DELAY_SECONDS", "45")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Trello.Key)
	assert.Equal(t, "env-token", cfg.Trello.Token)
	assert.Equal(t, "env-list", cfg.Trello.ListID)
	assert.Equal(t, "groq", cfg.LLM.APIKey)
	assert.Equal(t, 45, cfg.Pipeline.DelaySeconds)
	assert.Equal(t, 10, cfg.Pipeline.MaxMessages)
	assert.Equal(t, 15, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, QueryModeNewerThan, cfg.Mailbox.QueryMode)
	assert.Equal(t, "https://api.trello.com/1", cfg.Trello.BaseURL)
}

func TestMailboxLocation(t *testing.T) {
	m := MailboxConfig{Timezone: "Local"}
	loc, err := m.Location()
	require.NoError(t, err)
	assert.Equal(t, "Local", loc.String())

	m.Timezone = "Europe/Berlin"
	loc, err = m.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}
