package history

import "time"

// Transaction is one confirmed transaction together with the logs its
// operation produced.
type Transaction struct {
	Seq             uint64   `gorm:"primaryKey;autoIncrement"`
	TxID            string   `gorm:"size:64;uniqueIndex"`
	Sender          string   `gorm:"size:96;index"`
	Round           uint64   `gorm:"index"`
	RoundTime       int64    `gorm:"not null"`
	AppID           uint64   `gorm:"index"`
	TxType          string   `gorm:"size:16;index"`
	Method          string   `gorm:"size:64;index"`
	Args            [][]byte `gorm:"serializer:json;type:text"`
	Logs            [][]byte `gorm:"serializer:json;type:text"`
	PaymentReceiver string   `gorm:"size:96"`
	PaymentAmount   uint64
	CreatedAt       time.Time
}

// Query selects transactions. Zero values do not filter.
type Query struct {
	AppID    uint64
	TxType   string
	Method   string
	Sender   string
	MinRound uint64
	MaxRound uint64
	Limit    int
	Next     string
}
