// Package logging builds litemodel's slog logger.
//
// Entries carry service and version. Packages that log take a small
// interface, and the daemon hands each of them a Component child so every
// line says where it came from:
//
//	logger := logging.New(cfg.Logging, version)
//	p.SetLogger(logger.Component("pool"))
//	mgr.SetLogger(logger.Component("txn"))
//
// Config:
//
//	logging:
//	  level: info      # debug | info | warn | error
//	  format: json     # json | text
//	  output: stdout   # stdout | stderr
//
// Statement arguments are never logged; they may carry user data.
package logging
