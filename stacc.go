// Copyright 2016 Florin Pățan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Command stacc
//
// This is a Slack bot that runs stack language snippets. Any message
// containing "stacc" and a backtick span, like
//
//	stacc `1 2 ADD PRINT`
//
// has its first span sent to the interpreter service and the result posted
// back as a reply.
//
// To run this you need to set the ` CLIENT_SECRET ` environment variable
// with the Slack bot token. ` API_URL ` points at the interpreter and
// defaults to http://server:8000.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobridge/stacc/bot"
	"github.com/gobridge/stacc/handlers"
	"github.com/gobridge/stacc/interpreter"
	"github.com/gobridge/stacc/status"
	"github.com/nlopes/slack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var botVersion = "HEAD"

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	cfg, envErr := configFromEnv(getenv)

	cmd := &cobra.Command{
		Use:          "stacc",
		Short:        "Slack bot that executes stack language snippets",
		Version:      botVersion,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.devMode)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("bot stopped", zap.Error(err))
				return err
			}
			logger.Info("bot stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.apiURL, "api-url", cfg.apiURL, "base URL of the interpreter service (env API_URL)")
	flags.DurationVar(&cfg.timeout, "timeout", cfg.timeout, "timeout for a single interpreter call (env STACC_TIMEOUT)")
	flags.StringVar(&cfg.metricsAddr, "metrics-addr", cfg.metricsAddr, "address for /metrics and /healthz, empty disables (env STACC_METRICS_ADDR)")
	flags.BoolVar(&cfg.devMode, "dev", cfg.devMode, "development logging (env STACC_DEV_MODE)")
	return cmd
}

func newLogger(devMode bool) (*zap.Logger, error) {
	if devMode {
		return zap.NewDevelopmentConfig().Build()
	}
	return zap.NewProductionConfig().Build()
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   15 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	exec := interpreter.New(httpClient, cfg.apiURL, cfg.timeout)
	if err := exec.Ping(ctx); err != nil {
		logger.Warn("interpreter not reachable", zap.String("url", cfg.apiURL), zap.Error(err))
	}

	slackAPI := slack.New(cfg.clientSecret)
	h := handlers.ProcessLinear(
		handlers.Stacc(exec, logger.Named("stacc"), handlers.NewMetrics(reg)),
		handlers.BotVersion(handlers.Keyword+" version", botVersion),
		handlers.Help(handlers.Keyword+" help"),
	)

	b := bot.New(slackAPI, h, logger)
	if err := b.Init(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	rtm := slackAPI.NewRTM()
	go rtm.ManageConnection()
	defer rtm.Disconnect()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return b.Run(ctx, rtm.IncomingEvents)
	})

	if cfg.metricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.metricsAddr,
			Handler:           status.NewRouter(reg, botVersion),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving status endpoints", zap.String("addr", cfg.metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving status endpoints: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
