package main

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/hertz-contrib/cors"
	"github.com/hertz-contrib/monitor-prometheus"
	"github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/xh-polaris/mindy-core-api/biz/infra/metrics"
	"github.com/xh-polaris/mindy-core-api/biz/router"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/provider"
)

func main() {
	provider.Init()
	p := provider.Get()
	c := p.Config
	logs.SetLevel(c.Log.Level)

	tracer, cfg := tracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(c.ListenOn),
		server.WithTracer(prometheus.NewServerTracer(c.Metrics.ListenOn, c.Metrics.Path, prometheus.WithRegistry(metrics.Registry))),
		tracer,
	)
	h.Use(tracing.ServerMiddleware(cfg), cors.Default())
	router.GeneratedRegister(h)

	// 后台归档与摘要
	p.Sweeper.Start()
	h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
		p.Sweeper.Stop()
		p.Queue.Wait()
		logs.Infof("background workers stopped")
	})

	logs.Infof("server listen on %s", c.ListenOn)
	h.Spin()
}
