package types

// PaymentGateway identifies the gateway that owns an order's payment flow.
// The reconciliation engine only acts on orders whose payment method equals
// PaymentGatewayPaydo; everything else belongs to another gateway.
type PaymentGateway string

const (
	PaymentGatewayPaydo PaymentGateway = "paydo"
)

// PaymentSubMethod is one of the provider payment rails a customer may pick
// at checkout when several are enabled (cards, wallets, local methods).
type PaymentSubMethod struct {
	Code  string `mapstructure:"code" json:"code"`
	Title string `mapstructure:"title" json:"title"`
}
