package enums

// InvoiceStatus tracks an invoice issued for an order.
type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

func (s InvoiceStatus) String() string {
	return string(s)
}
