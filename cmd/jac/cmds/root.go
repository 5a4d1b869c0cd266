package cmds

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/jac-chat/backend/internal/config"
	"github.com/zhouzirui/jac-chat/backend/internal/logging"
	"github.com/zhouzirui/jac-chat/backend/internal/model/persona"
	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
)

// NewRootCommand assembles the jac CLI.
func NewRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "jac",
		Short:         "JAC chat backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a missing .env is fine, the process environment still applies
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("file", envFile).Msg("failed to load env file")
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newServeCommand(), newChatCommand())
	return root
}

// bootstrap loads configuration and builds the shared chat options.
func bootstrap(cmd *cobra.Command, console bool) (*config.Config, zerolog.Logger, chatService.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), chatService.Options{}, err
	}
	if console {
		cfg.Log.Format = "console"
	}
	logger := logging.Setup(cfg.Log, os.Stderr)

	completer, err := cfg.NewCompleter(cmd.Context())
	if err != nil {
		return nil, logger, chatService.Options{}, err
	}
	window, err := cfg.Chat.Window()
	if err != nil {
		return nil, logger, chatService.Options{}, err
	}

	opts := chatService.Options{
		Completer: completer,
		Personas:  persona.NewMemoryStore(persona.Seed()),
		Params:    cfg.Chat.Params(),
		Window:    window,
		Timeout:   cfg.Chat.Timeout,
		Fallback:  cfg.Chat.FallbackMessage,
		Logger:    &logger,
	}
	return cfg, logger, opts, nil
}
