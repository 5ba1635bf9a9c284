package producers

import "github.com/azzapp/billing-api/internal/shared/queue"

type Queue interface {
	Put(message queue.Message) error
}
