package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/config"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the documentation tree into the knowledge base",
		Long: `Embed every markdown file under knowledge.dir and store the chunks in the
knowledge base. The daemon does this at startup; run it by hand after bulk
documentation changes when the watcher is disabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadWithFile(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if !cfg.Knowledge.Enabled() {
				return errNoKnowledge
			}
			logger, tel, err := setupLogging(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer func() {
				_ = tel.Shutdown(ctx)
				_ = logger.Sync()
			}()

			a := &app{cfg: cfg, logger: logger, tel: tel}
			defer a.Close()
			if err := a.setupKnowledge(); err != nil {
				return err
			}

			n, err := a.indexer.IndexAll(ctx)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", a.indexer.Root(), err)
			}
			logger.Info("knowledge indexed", zap.String("root", a.indexer.Root()), zap.Int("chunks", n))
			cmd.Printf("Indexed %d chunks from %s (%d in store)\n", n, a.indexer.Root(), a.corpus.Count())
			return nil
		},
	}
}
