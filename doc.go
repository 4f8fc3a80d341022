// Package codecache implements a code-cache frontend: it stores source text
// keyed by an identifier, frames it in an executable envelope, and exposes a
// load-and-execute-once entry point that the configured backend runs.
//
// Components:
//   - Frontend: validates identifiers and tags, wraps on Set, unwraps on Get.
//   - Backend: byte store with tags and lifetimes that can also execute an
//     entry once per process (memory, file, kv over ristretto/bigcache/redis).
//   - Executor: runs a stored payload (php CLI, govaluate expressions).
//
// Stored payload:
//
//	"<?php " + code + "\n#"
//
// Identifiers and tags share one grammar: [A-Za-z0-9_%\-&]+
//
// Usage:
//
//	fe, _ := codecache.New(codecache.Options{
//	    Identifier: "Flow_Object_Classes",
//	    Backend:    memory.New(memory.Config{Executor: php.New(php.Config{})}),
//	})
//	_ = fe.Set(ctx, "Foo123", "echo 'hi';", []string{"group_a"}, backend.Unlimited)
//	code, ok, _ := fe.Get(ctx, "Foo123") // "echo 'hi';", true
//	out, _ := fe.RequireOnce(ctx, "Foo123")
package codecache
