package oneshot

import (
	"os"
	"strings"

	"github.com/RoanBrand/oneshot/internal/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SetupLogging applies the log file and level settings of c.
func SetupLogging(c *config.Config) error {
	if c.Log.File != "" {
		f, err := os.OpenFile(c.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}
	if c.Log.Level != "" {
		switch strings.ToLower(c.Log.Level) {
		case "error":
			log.SetLevel(log.ErrorLevel)
		case "warn":
			log.SetLevel(log.WarnLevel)
		case "info":
			log.SetLevel(log.InfoLevel)
		case "debug":
			log.SetLevel(log.DebugLevel)
		default:
			return errors.New("unknown log level: " + c.Log.Level)
		}
	}

	return nil
}
