// Package config holds the process-level glue: listen-port resolution
// and logger setup. The interesting invariants live elsewhere; this is
// deliberately thin I/O.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultPort is used when neither a flag nor the port file
	// provides one
	DefaultPort = 1357

	// DefaultPortFile is the on-disk fallback read when no port flag
	// is given. Only its first line is considered.
	DefaultPortFile = "courier.port"

	minPort = 1
	maxPort = 65535
)

// ErrPortOutOfRange is returned for explicit ports outside 1-65535
var ErrPortOutOfRange = errors.New("port out of range (1-65535)")

// ResolvePort picks the listen port. An explicit non-zero flag wins
// and must be valid; otherwise the first line of the port file is
// consulted, and any problem there falls back to the default with a
// logged warning.
func ResolvePort(flagPort int, portFile string, log *logrus.Logger) (int, error) {
	if flagPort != 0 {
		if flagPort < minPort || flagPort > maxPort {
			return 0, fmt.Errorf("%w: %d", ErrPortOutOfRange, flagPort)
		}
		return flagPort, nil
	}

	port, ok := readPortFile(portFile, log)
	if !ok {
		log.WithField("port", DefaultPort).Warn("using default port")
		return DefaultPort, nil
	}
	return port, nil
}

// readPortFile reads a port number from the first line of the given
// file. Missing or malformed files are not fatal.
func readPortFile(path string, log *logrus.Logger) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("path", path).Warn("port file not found")
		} else {
			log.WithError(err).WithField("path", path).Warn("failed to read port file")
		}
		return 0, false
	}

	line, _, _ := strings.Cut(string(data), "\n")
	port, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		log.WithField("path", path).Warn("invalid port number in port file")
		return 0, false
	}

	if port < minPort || port > maxPort {
		log.WithFields(logrus.Fields{
			"path": path,
			"port": port,
		}).Warn("port in port file outside valid range")
		return 0, false
	}

	log.WithFields(logrus.Fields{
		"path": path,
		"port": port,
	}).Info("read port from port file")
	return port, true
}

// SetupLogger builds the process logger from the level name and the
// format switch
func SetupLogger(level string, jsonFormat bool) (*logrus.Logger, error) {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)

	if jsonFormat {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return log, nil
}
