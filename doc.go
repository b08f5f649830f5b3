// Package grantrelay relays organization-membership events into an
// authorization-policy backend with at-least-once semantics.
//
// Every inbound event is persisted before delivery is attempted. A record
// is deleted once the backend reflects it, or once it proves structurally
// invalid; otherwise it stays pending and is retried by a fixed-interval
// sweeper until delivery succeeds or its retention window elapses. Records
// left pending by a previous process are replayed when the relay starts.
//
// grantrelay is usable as a library; cmd/grantrelay wires it into a service.
//
// Quick start:
//
//	backend, _ := policy.New("https://policy.internal", token)
//	r, err := grantrelay.New(
//	    grantrelay.WithStore(redis.New(rdb)),
//	    grantrelay.WithBackend(backend),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := r.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Stop(context.Background())
//
//	res, err := r.Intake(ctx, &event.Record{
//	    Operation: event.OpApplyGrant,
//	    Principal: "alice",
//	    Role:      "member",
//	})
package grantrelay
