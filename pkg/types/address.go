package types

// Address is stored as a jsonb snapshot on orders and returns.
type Address struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	State      string  `json:"state,omitempty" validate:"max=100"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,len=2"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

func (a Address) Validate() error {
	return validateSnapshot("address", a)
}
