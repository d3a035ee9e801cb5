package bootstrap

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fulldump/annotationstore/api"
	"github.com/fulldump/annotationstore/configuration"
	"github.com/fulldump/annotationstore/database"
	"github.com/fulldump/annotationstore/service"
)

var VERSION = "dev"

func Bootstrap(c *configuration.Configuration) (start, stop func()) {

	logger, err := NewLogger(c.LogLevel)
	if err != nil {
		slog.Error("configure logger", "err", err)
		os.Exit(-1)
	}
	slog.SetDefault(logger)

	tokens, err := configuration.LoadTokens(c)
	if err != nil {
		logger.Error("load tokens", "err", err)
		os.Exit(-1)
	}
	if c.Debug {
		logger.Warn("debug mode, the debug token is accepted")
	}
	if len(tokens) == 0 {
		logger.Warn("no tokens configured, every /directories request will be refused", "tokens_file", c.TokensFile)
	}

	db := database.NewDatabase(&database.Config{
		DocumentsDir:   c.DocumentsDir,
		AnnotationsDir: c.AnnotationsDir,
		LockTimeout:    c.LockTimeout,
		OrphanAge:      c.OrphanAge,
		Logger:         logger,
	})

	b := api.Build(service.NewService(db), VERSION, tokens)
	b.WithInterceptors(api.AccessLog(logger.With("component", "access")))
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.PrettyErrorInterceptor,
		api.RecoverFromPanic,
		api.InterceptorUnavailable(db),
	)

	s := &http.Server{
		Addr:              c.HttpAddr,
		Handler:           api.Cors(b),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		logger.Error("listen", "addr", c.HttpAddr, "err", err)
		os.Exit(-1)
	}
	logger.Info("listening", "addr", c.HttpAddr, "version", VERSION)

	stopOnce := sync.Once{}
	stop = func() {
		stopOnce.Do(func() {
			db.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := s.Shutdown(ctx)
			if err != nil {
				logger.Error("shutdown http server", "err", err)
			}
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for {
			sig := <-signalChan
			logger.Info("signal received", "signal", sig.String())
			stop()
		}
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Start()
			if err != nil {
				logger.Error("database", "err", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serve(ln)
			if err != nil && err != http.ErrServerClosed {
				logger.Error("http server", "err", err)
			}
		}()

		wg.Wait()
	}

	return
}
