// Package apool provides a process pool for request driven applications.
//
// The pool manages one named group of worker processes per application and
// comes with pluggable service layers such as:
//
//   - runtime   – scheduling, spawning and group state transitions
//   - spawner   – pluggable worker process launchers per application type
//   - restart   – restart file detection with stat throttling
//   - analytics – periodic memory sampling and telemetry export
//
// apool is designed to be embedded in host applications.  End-users
// typically interact with the pool via the high-level Service façade
// exposed by the root package:
//
//	srv, _ := apool.New()
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	opts := option.New("/srv/app")
//	opts.AppType = apool.AppTypeCommand
//	opts.StartCommand = "./bin/worker"
//	session, _ := rt.GetSession(ctx, opts)
//	defer session.Close()
//
// For more details see the individual sub-packages.
package apool
