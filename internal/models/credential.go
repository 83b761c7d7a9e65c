package models

// ExchangeCredential is an owner's API key pair. The table belongs to the
// credential service; this module only reads it.
type ExchangeCredential struct {
	OwnerID   string `gorm:"primaryKey;type:varchar(64)"`
	APIKey    string `gorm:"not null"`
	APISecret string `gorm:"not null"`
}

func (ExchangeCredential) TableName() string {
	return "exchange_credentials"
}

// String never prints the secret.
func (c ExchangeCredential) String() string {
	return "ExchangeCredential{OwnerID:" + c.OwnerID + "}"
}

// GoString covers the %#v verb.
func (c ExchangeCredential) GoString() string { return c.String() }
