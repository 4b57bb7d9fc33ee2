package main

import (
	"github.com/gomlx/go-neuraltokenizer/internal/config"
	"github.com/gomlx/go-neuraltokenizer/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newServeCmd(cfg config.Config) *cobra.Command {
	var (
		model        modelFlags
		addr         string
		maxBodyBytes int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a boundary model over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxBodyBytes <= 0 {
				return errors.Errorf("--max-body-bytes must be positive, got %d", maxBodyBytes)
			}
			m, err := model.load()
			if err != nil {
				return err
			}
			return server.New(m, maxBodyBytes).ListenAndServe(cmd.Context(), addr)
		},
	}
	model.register(cmd, cfg)
	cmd.Flags().StringVar(&addr, "addr", cfg.Addr, "Address to listen on")
	cmd.Flags().Int64Var(&maxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "Maximum size of a request body")
	return cmd
}
