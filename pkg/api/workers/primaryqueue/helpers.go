package primaryqueue

import (
	"github.com/pkg/errors"
	redsync "gopkg.in/redsync.v1"

	"github.com/azzapp/billing-api/internal/shared/queue/consumers"
)

func RegisterConsumer(consumeFn interface{}, queueID string, m *consumers.Multiplexer, df *redsync.Redsync) error {
	consumer, err := consumers.NewReflectConsumer(consumeFn, ConsumerTimeout, df)
	if err != nil {
		return errors.Wrapf(err, "can't make reflect consumer for queue %s", queueID)
	}

	return m.RegisterConsumer(queueID, consumer)
}
