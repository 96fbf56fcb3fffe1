// Package log exposes the logger types used by mealsync so programs that
// embed it can plug in their own logging.
//
// Wrap an existing zerolog logger:
//
//	svc, err := mealsync.New(cfg, mealsync.WithLogger(log.NewZerolog(zl)))
//
// Or implement Logger directly:
//
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
package log
