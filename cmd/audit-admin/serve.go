package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-audit/pkg/graphql"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/security"
)

func handleServeCommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	g := addGlobalFlags(fs)
	addr := fs.String("addr", ":8484", "Listen address")
	printToken := fs.Bool("print-token", false, "Issue an admin token on startup and print it")
	fs.Parse(args)

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	if e.tokens == nil {
		fatalf("serve requires auth.jwt_secret in the config; without it every request is rejected")
	}
	if *printToken {
		token, err := e.tokens.IssueToken(g.actor, security.RoleAdmin)
		if err != nil {
			fatalf("Failed to issue token: %v", err)
		}
		fmt.Printf("Admin token for %s:\n%s\n", g.actor, token)
	}

	schema, err := graphql.NewSchema(graphql.Deps{Queries: e.queries, Reporter: e.reporter})
	if err != nil {
		fatalf("Failed to build schema: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", graphql.NewHandler(schema, e.tokens, e.logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if e.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(e.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	e.retention.Start()
	defer e.retention.Stop()

	server := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("serving GraphQL API", logging.String("addr", *addr))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fatalf("Server failed: %v", err)
	case sig := <-stop:
		e.logger.Info("shutting down", logging.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown did not finish cleanly: %v\n", err)
	}
}
