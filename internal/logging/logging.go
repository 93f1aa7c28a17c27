// Package logging configures the process-wide logrus logger.
package logging

import "github.com/sirupsen/logrus"

// Setup applies the log level and a timestamped text format to the
// standard logger every package hangs off.
func Setup(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
