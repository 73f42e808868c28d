// demo 客户端：起一个根 span，带着它调用 ginspan 服务，服务端的 span 会挂在它下面
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/config"
	"github.com/imattdu/ginspan/exporter"
	"github.com/imattdu/ginspan/httpclient"
	"github.com/imattdu/ginspan/logx"
	"github.com/imattdu/ginspan/tracex"
)

func main() {
	var (
		target string
		path   string
		kind   string
	)
	cmd := &cobra.Command{
		Use:          "demo",
		Short:        "call a ginspan server inside a client span",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd.Context(), target, path, kind)
		},
	}
	cmd.Flags().StringVar(&target, "target", "http://127.0.0.1:8080", "server base url")
	cmd.Flags().StringVar(&path, "path", "/wire", "path to call")
	cmd.Flags().StringVar(&kind, "exporter", config.ExporterStdout, "none|stdout|otlp-http|otlp-grpc")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func call(ctx context.Context, target, path, kind string) error {
	logger := logx.NewWithWriter(os.Stderr, logx.ParseLevel("info"))

	expCfg := config.Default().Exporter
	expCfg.Kind = kind
	expCfg.ServiceName = "ginspan-demo"
	tp, err := exporter.NewProvider(ctx, expCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	tc := tracex.New(tracex.WithTracer(tracex.NewTracer(tp, tracex.W3CPropagator())), tracex.WithLogger(logger))
	client, err := httpclient.New(
		httpclient.WithBaseURL(target),
		httpclient.WithTracing(tc),
		httpclient.WithStatsHook(httpclient.LogStatsHook(logger)),
	)
	if err != nil {
		return err
	}

	ctx, span := tc.Tracer().Start(ctx, "demo "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var body []byte
	resp, err := client.GetJSON(ctx, path, &body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	fmt.Printf("trace_id=%s status=%d body=%s\n", span.SpanContext().TraceID(), resp.StatusCode, body)
	return nil
}
