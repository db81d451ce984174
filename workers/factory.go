package workers

import (
	"fmt"
	"log/slog"

	"github.com/alexbalandi/chatwoot-dify/config"

	"github.com/jinzhu/gorm"
)

// BuildQueue returns the queue selected by conf.Queue.Driver and a close func.
func BuildQueue(conf config.Configuration, db *gorm.DB, logger *slog.Logger) (Queue, func() error, error) {
	noop := func() error { return nil }
	switch conf.Queue.Driver {
	case "", "database":
		return NewDBQueue(db, conf.Relay.PollInterval, conf.Relay.JobLease, conf.Relay.Workers*4, logger), noop, nil
	case "memory":
		return NewMemoryQueue(conf.Queue.Capacity, logger), noop, nil
	case "amqp":
		q, err := DialAMQP(conf.Queue.AmqpURL, conf.Queue.AmqpQueue, conf.Relay.Workers, logger)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown queue driver %q", conf.Queue.Driver)
}
