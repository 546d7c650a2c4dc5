package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// newLogger builds the process logger. Level and format are validated by
// config.Load, so parse errors cannot occur here.
func newLogger(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}

	return log
}
