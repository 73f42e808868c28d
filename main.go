package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/imattdu/ginspan/config"
	"github.com/imattdu/ginspan/errorx"
	"github.com/imattdu/ginspan/exporter"
	"github.com/imattdu/ginspan/httpclient"
	"github.com/imattdu/ginspan/logx"
	"github.com/imattdu/ginspan/middleware"
	"github.com/imattdu/ginspan/tracex"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		port     string
		traceAll bool
		kind     string
		reapTTL  time.Duration
	)
	cmd := &cobra.Command{
		Use:           "ginspan",
		Short:         "gin server with per-request OpenTelemetry spans",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// 命令行优先于环境变量
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("trace-all") {
				cfg.Tracing.TraceAll = traceAll
			}
			if flags.Changed("exporter") {
				cfg.Exporter.Kind = kind
			}
			if flags.Changed("reap-ttl") {
				cfg.Tracing.ReapTTL = reapTTL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "8080", "listen port (env PORT)")
	cmd.Flags().BoolVar(&traceAll, "trace-all", true, "start a span for every request (env TRACE_ALL)")
	cmd.Flags().StringVar(&kind, "exporter", config.ExporterNone, "none|stdout|otlp-http|otlp-grpc (env TRACE_EXPORTER)")
	cmd.Flags().DurationVar(&reapTTL, "reap-ttl", 0, "finish spans older than this, 0 disables (env TRACE_REAP_TTL)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logx.Init(cfg.Logging.Logx("ginspan")); err != nil {
		return errorx.Wrap(err, errorx.ErrConfig, errorx.WithMessage("init logger"))
	}
	if err := middleware.InitAccessLogger(logx.L()); err != nil {
		return err
	}

	tp, err := exporter.NewProvider(ctx, cfg.Exporter)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(tracex.W3CPropagator())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := tracex.NewMetrics(reg)
	if err != nil {
		return err
	}

	opts := append(cfg.Tracing.Options(),
		tracex.WithTracerFactory(tracex.GlobalTracer),
		tracex.WithMetrics(metrics),
		tracex.WithLogger(logx.L()),
	)
	tc := tracex.New(opts...)

	client, err := httpclient.New(
		httpclient.WithBaseURL("http://"+localAddr(cfg.Server)),
		httpclient.WithTracing(tc),
		httpclient.WithStatsHook(httpclient.LogStatsHook(logx.L())),
		httpclient.WithCircuitBreaker(httpclient.DefaultBreakerConfig("self")),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           newEngine(tc, client, reg, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logx.Info(ctx, logx.TagServer, "listening", "addr", srv.Addr, "trace_all", tc.TraceAll())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Tracing.ReapTTL > 0 {
		g.Go(func() error {
			tc.RunReaper(ctx, cfg.Tracing.ReapInterval, cfg.Tracing.ReapTTL)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if n := tc.Shutdown(); n > 0 {
			logx.Warn(shutdownCtx, logx.TagServer, "in-flight spans abandoned", "count", n)
		}
		return errors.Join(err, tp.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// localAddr 自调用地址，监听 0.0.0.0 时走回环
func localAddr(s config.ServerConfig) string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return config.ServerConfig{Host: host, Port: s.Port}.Addr()
}

func newEngine(tc *tracex.Tracing, client *httpclient.Client, reg *prometheus.Registry, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CORS(origins...), middleware.Tracing(tc), middleware.AccessMiddleware())

	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "Success")
	})
	r.GET("/decorated", middleware.Trace(tc, "url", "url_rule")(func(c *gin.Context) {
		c.String(http.StatusOK, "Success")
	}))
	r.GET("/route/:name", middleware.TraceRoute(tc, "path", "route"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name")})
	})
	r.GET("/error", func(c *gin.Context) {
		err := errorx.New(errorx.ErrDefault, errorx.WithMessage("demo failure"))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": err.Code.Code, "msg": err.Error()})
	})
	r.GET("/wire", func(c *gin.Context) {
		var body []byte
		resp, err := client.GetJSON(c.Request.Context(), "/test", &body)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, gin.H{"msg": err.Error()})
			return
		}
		out := gin.H{"status": resp.StatusCode, "body": string(body)}
		if span, ok := tc.Span(c.Request.Context()); ok {
			out["trace_id"] = span.SpanContext().TraceID().String()
		}
		c.JSON(http.StatusOK, out)
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return r
}
