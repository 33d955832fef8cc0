package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"z-novel-pipeline/internal/config"
)

const redacted = "******"

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !showSecrets {
			cfg = redactSecrets(cfg)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print API keys and passwords in clear text")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// redactSecrets 返回隐藏密钥后的副本
func redactSecrets(cfg *config.Config) *config.Config {
	out := *cfg
	out.LLM.Providers = make(map[string]config.ProviderConfig, len(cfg.LLM.Providers))
	for name, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			p.APIKey = redacted
		}
		out.LLM.Providers[name] = p
	}
	if out.Messaging.RedisStream.Password != "" {
		out.Messaging.RedisStream.Password = redacted
	}
	if out.Storage.Backup.SecretAccessKey != "" {
		out.Storage.Backup.SecretAccessKey = redacted
	}
	return &out
}
