// Package app ties the runtime core together for one process.
//
// A [Runtime] owns the transport, the cluster scope resolver and the
// [cluster.Manager]. Components register a setup function per main name;
// when a network is deployed every instance is bound to an
// [InstanceContext] that exposes its input ports and one dispatcher per
// output stream, wired to the input ports of its targets.
//
// # Basic Usage
//
//	rt, err := app.New(app.Config{
//	    Cluster: cluster.Config{Scope: cluster.ScopeLocal},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(context.Background())
//
//	_ = rt.Register("words", func(ctx context.Context, ic *app.InstanceContext) error {
//	    f, err := ic.Feeder("out", feeder.Options{FeedQueueMaxSize: 100})
//	    if err != nil {
//	        return err
//	    }
//	    f.OnFeed(func(f *feeder.Feeder) {
//	        _, _ = feeder.EmitJSON(f, nextWord(), nil)
//	    })
//	    return f.Start(ic.Context())
//	})
//
//	_ = rt.Register("count", func(ctx context.Context, ic *app.InstanceContext) error {
//	    return ic.Handle("in", func(d *input.Delivery) {
//	        count(d.Data)
//	        _ = d.Ack()
//	    })
//	})
//
//	net, _ := topology.LoadFile("wordcount.yaml")
//	_, err = rt.Deploy(ctx, net)
//
// # Cluster Scope
//
// With an empty [cluster.Config.Scope] the runtime probes the cluster
// address on first use: an answering control plane selects the orchestrated
// cluster, a grid with members selects the grid cluster, anything else runs
// locally. The result is cached for the lifetime of the runtime.
package app
