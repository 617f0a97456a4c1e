package notify

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// WhatsAppConfig configures the checkout hand-off link.
type WhatsAppConfig struct {
	Number string `default:"5511999999999" usage:"Store WhatsApp number, digits only with country code"`
	Store  string `default:"Loja Virtual" usage:"Store name shown in the WhatsApp message"`
}

// WhatsAppLink builds a wa.me link pre-filled with the order summary, so the
// customer can finish the purchase in a chat with the store.
func WhatsAppLink(cfg WhatsAppConfig, o *order.Order) string {
	var b strings.Builder
	b.WriteString("*NOVO PEDIDO #" + strconv.FormatInt(o.ID, 10) + " - " + cfg.Store + "*\n\n*Itens:*\n")
	for _, it := range o.Items {
		b.WriteString("• " + strconv.Itoa(it.Quantity) + "x " + it.Name + " - " + FormatBRL(it.Subtotal) + "\n")
	}
	b.WriteString("\n*TOTAL: " + FormatBRL(o.Total) + "*")

	number := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, cfg.Number)
	return "https://wa.me/" + number + "?text=" + url.QueryEscape(b.String())
}
