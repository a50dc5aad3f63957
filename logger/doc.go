// Package logger provides structured logging for gridstore using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped loggers carrying structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("gridstore").WithComponent("gridfs")
//	log.Info("file stored", logger.Fields(logger.FieldFilename, name))
package logger
