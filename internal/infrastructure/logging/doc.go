// Package logging provides structured logging for the Gray Logic Tuya service.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same default fields and format.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("pairing session opened", "driver", "socket")
//
// # Security
//
// Never log access tokens, refresh tokens, user codes or QR artifacts in full.
// Use Mask:
//
//	logger.Debug("artifact issued", "qrcode", logging.Mask(code))
package logging
