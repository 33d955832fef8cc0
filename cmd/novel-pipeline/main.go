// Package main novel-pipeline 命令行入口
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"z-novel-pipeline/internal/config"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "novel-pipeline",
	Short: "Human-in-the-loop novel generation pipeline backed by a local model",
	Long: `novel-pipeline drives a local Ollama model through synopsis, outline,
characters, world, timeline and section-by-section writing, pausing for
approval after every phase. Each novel lives in its own project directory.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// 加载 .env 文件（如果存在）
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory containing config.yaml (default: ./configs)")
	rootCmd.Version = Version
}

// loadConfig 按 --config-dir 加载配置
func loadConfig() (*config.Config, error) {
	if configDir != "" {
		return config.LoadFrom(configDir)
	}
	return config.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
