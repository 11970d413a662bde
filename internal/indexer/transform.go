package indexer

import (
	"time"

	"orderScope/internal/model"
)

func buildOrder(event model.OrderEvent) model.Order {
	return model.Order{
		ChainID:     event.ChainID,
		OrderID:     event.OrderID,
		RequestID:   event.RequestID,
		User:        event.User,
		Token:       event.Token,
		Amount:      event.Amount,
		TxHash:      event.TxHash,
		BlockNumber: event.BlockNumber,
		Timestamp:   time.Unix(int64(event.Timestamp), 0).UTC(),
	}
}
