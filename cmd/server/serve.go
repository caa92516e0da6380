/*
serve.go - HTTP server command

STARTUP SEQUENCE:
  1. Resolve configuration
  2. Open SQLite store, storage coordinator and league
  3. Check the season's schedule against the team set
  4. Register transition hooks
  5. Configure HTTP router and start the flush scheduler
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the flush scheduler (final flush)
  4. Wait for transition hooks, close database connection
*/
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/league-engine/api"
	"github.com/warp/league-engine/league"
)

// mailingListNudge asks long-time players to join the mailing list.
var mailingListNudge = league.Nudge{
	Attribute:         "naggedMailingList",
	AfterSeasons:      3,
	RepeatProbability: 0.01,
	MaxCount:          2,
}

// feedbackNudge asks for feedback, then occasionally to share the game.
var feedbackNudge = league.Nudge{
	Attribute:                 "nagged",
	AfterSeasons:              3,
	MaxCount:                  1,
	FollowUpProbability:       0.125,
	FollowUpRepeatProbability: 0.0125,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the league over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)

		a, err := openApp(context.Background(), cfg)
		if err != nil {
			logrus.Fatalf("Failed to start: %v", err)
		}

		if err := a.orch.ValidateSchedule(context.Background(), a.league); err != nil {
			a.log.WithError(err).Warn("current schedule does not fit the team set")
		}

		nudges := []league.Nudge{feedbackNudge}
		if !cfg.Server.MailingListSubscribed {
			nudges = append([]league.Nudge{mailingListNudge}, nudges...)
		}
		a.orch.OnTransition(league.NudgeHook(a.coord, a.log,
			rand.New(rand.NewSource(time.Now().UnixNano())),
			func(ctx context.Context, n league.Nudge, count int) {
				a.log.WithFields(logrus.Fields{"nudge": n.Attribute, "count": count}).Info("showing nudge")
			}, nudges...))

		handler := api.NewHandler(a.orch, a.league, a.store, a.log)
		router := api.NewRouter(handler)

		flusher := api.NewFlushScheduler(a.coord, a.log)
		flusher.Interval = cfg.Server.FlushInterval
		flusher.Start()

		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			st := a.league.State()
			a.log.WithFields(logrus.Fields{
				"port":   cfg.Server.Port,
				"season": st.Season,
				"phase":  st.Phase,
			}).Info("server starting")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.Fatalf("Server failed: %v", err)
			}
		}()

		// Wait for interrupt signal
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		a.log.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			a.log.WithError(err).Error("server forced to shutdown")
		}
		flusher.Stop()
		a.close(ctx)

		a.log.Info("server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
