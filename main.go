package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ai_blog_generator/config"
	"ai_blog_generator/generator"
	"ai_blog_generator/logging"
	"ai_blog_generator/server"
)

var version = "dev"

var (
	configPath string
	envFile    string
	verbose    bool
	serveAddr  string
)

var rootCmd = &cobra.Command{
	Use:           "blog-generator",
	Short:         "Stream AI written blog posts from an OpenAI compatible model",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web page and the /api/generate relay",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "path to config.json")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "http listen address (overrides config server_addr)")

	rootCmd.AddCommand(serveCmd, generateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	llm, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	if !llm.Configured() {
		// 不阻止启动，请求时返回 500
		logger.Warn("DEEPSEEK_API_KEY is not set; generate requests will fail")
	}
	agent, err := generator.NewAgent(llm)
	if err != nil {
		return err
	}
	srv, err := server.New(agent, logger)
	if err != nil {
		return err
	}

	listen := cfg.ServerAddr
	if serveAddr != "" {
		listen = serveAddr
	}
	if listen == "" {
		listen = config.DefaultServerAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx, listen); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildLLM(cfg config.Config) (generator.LLMClient, error) {
	settings := generator.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	}
	if settings.Provider == "" {
		settings.Provider = generator.DefaultProvider
	}
	if settings.Provider == generator.DefaultProvider && settings.BaseURL == "" {
		settings.BaseURL = generator.DefaultBaseURL
	}
	return generator.NewLLM(settings)
}
