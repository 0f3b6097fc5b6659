package domain

import (
	"time"
)

// Channel is the origination channel of a transaction.
type Channel string

const (
	ChannelWeb    Channel = "WEB"
	ChannelMobile Channel = "MOBILE"
	ChannelAPI    Channel = "API"
	ChannelUSSD   Channel = "USSD"
)

// TransactionType classifies the money movement.
type TransactionType string

const (
	TransactionTransfer   TransactionType = "TRANSFER"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
	TransactionPayment    TransactionType = "PAYMENT"
	TransactionAirtime    TransactionType = "AIRTIME"
)

// KYCTier is the customer's verification tier. Limits are attached per tier
// in the rule book.
type KYCTier string

const (
	KYCTier0 KYCTier = "TIER_0"
	KYCTier1 KYCTier = "TIER_1"
	KYCTier2 KYCTier = "TIER_2"
	KYCTier3 KYCTier = "TIER_3"
)

// DefaultCurrency is applied when a request omits the currency.
const DefaultCurrency = "NGN"

// TransactionEvent is a single transaction presented for risk assessment.
// It is immutable once validated; the pipeline only reads it.
type TransactionEvent struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	RecipientID       string          `json:"recipientId"`
	Amount            float64         `json:"amount"`
	Currency          string          `json:"currency"`
	Channel           Channel         `json:"channel"`
	TransactionType   TransactionType `json:"transactionType"`
	KYCTier           KYCTier         `json:"kycTier"`
	AccountAge        float64         `json:"accountAge"` // days
	BVNVerified       bool            `json:"bvnVerified"`
	RecipientNew      bool            `json:"recipientNew"`
	DeviceFingerprint *string         `json:"deviceFingerprint,omitempty"`
	Location          Location        `json:"location"`
	Timestamp         time.Time       `json:"timestamp"`
	UserHistory       UserHistory     `json:"userHistory"`
}

// Location is where the transaction originated.
type Location struct {
	Country   string  `json:"country"`
	State     *string `json:"state,omitempty"`
	IPAddress *string `json:"ipAddress,omitempty"`
}

// UserHistory is the behavioural snapshot supplied with the transaction.
type UserHistory struct {
	AvgTransactionAmount      float64 `json:"avgTransactionAmount"`
	DailyTransactionCount     float64 `json:"dailyTransactionCount"`
	DailyTransactionVolume    float64 `json:"dailyTransactionVolume"`
	FailedTransactionsLast24h float64 `json:"failedTransactionsLast24h"`
	TotalTransactions         float64 `json:"totalTransactions"`
}

// TransactionRequest is the ingress payload. Pointer fields separate a
// missing value from its zero value so validation can report it.
type TransactionRequest struct {
	ID                string              `json:"id" validate:"required"`
	UserID            string              `json:"userId" validate:"required"`
	RecipientID       string              `json:"recipientId" validate:"required"`
	Amount            *float64            `json:"amount" validate:"required"`
	Currency          string              `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Channel           string              `json:"channel" validate:"required,oneof=WEB MOBILE API USSD"`
	TransactionType   string              `json:"transactionType" validate:"required,oneof=TRANSFER WITHDRAWAL PAYMENT AIRTIME"`
	KYCTier           string              `json:"kycTier" validate:"required,oneof=TIER_0 TIER_1 TIER_2 TIER_3"`
	AccountAge        *float64            `json:"accountAge" validate:"required"`
	BVNVerified       *bool               `json:"bvnVerified" validate:"required"`
	RecipientNew      *bool               `json:"recipientNew" validate:"required"`
	DeviceFingerprint *string             `json:"deviceFingerprint,omitempty"`
	Location          *LocationRequest    `json:"location" validate:"required"`
	Timestamp         string              `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	UserHistory       *UserHistoryRequest `json:"userHistory" validate:"required"`
}

// LocationRequest is the ingress form of Location.
type LocationRequest struct {
	Country   string  `json:"country" validate:"required"`
	State     *string `json:"state,omitempty"`
	IPAddress *string `json:"ipAddress,omitempty" validate:"omitempty,ip"`
}

// UserHistoryRequest is the ingress form of UserHistory.
type UserHistoryRequest struct {
	AvgTransactionAmount      *float64 `json:"avgTransactionAmount" validate:"required"`
	DailyTransactionCount     *float64 `json:"dailyTransactionCount" validate:"required"`
	DailyTransactionVolume    *float64 `json:"dailyTransactionVolume" validate:"required"`
	FailedTransactionsLast24h *float64 `json:"failedTransactionsLast24h" validate:"required"`
	TotalTransactions         *float64 `json:"totalTransactions" validate:"required"`
}

// ToEvent converts a validated request into a TransactionEvent.
// Callers must validate first; a nil required field panics.
func (r *TransactionRequest) ToEvent() (TransactionEvent, error) {
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return TransactionEvent{}, err
	}

	currency := r.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	return TransactionEvent{
		ID:                r.ID,
		UserID:            r.UserID,
		RecipientID:       r.RecipientID,
		Amount:            *r.Amount,
		Currency:          currency,
		Channel:           Channel(r.Channel),
		TransactionType:   TransactionType(r.TransactionType),
		KYCTier:           KYCTier(r.KYCTier),
		AccountAge:        *r.AccountAge,
		BVNVerified:       *r.BVNVerified,
		RecipientNew:      *r.RecipientNew,
		DeviceFingerprint: r.DeviceFingerprint,
		Location: Location{
			Country:   r.Location.Country,
			State:     r.Location.State,
			IPAddress: r.Location.IPAddress,
		},
		Timestamp: ts.UTC(),
		UserHistory: UserHistory{
			AvgTransactionAmount:      *r.UserHistory.AvgTransactionAmount,
			DailyTransactionCount:     *r.UserHistory.DailyTransactionCount,
			DailyTransactionVolume:    *r.UserHistory.DailyTransactionVolume,
			FailedTransactionsLast24h: *r.UserHistory.FailedTransactionsLast24h,
			TotalTransactions:         *r.UserHistory.TotalTransactions,
		},
	}, nil
}
