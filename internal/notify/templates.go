package notify

import (
	"html/template"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// Copy is the customer-facing text for one order status.
type Copy struct {
	Title   string
	Message string
}

var statusCopy = map[order.Status]Copy{
	order.StatusPendingPayment: {
		Title:   "Pedido Recebido com Sucesso!",
		Message: "Obrigado por sua compra! Seu pedido foi recebido e será processado assim que o pagamento for confirmado.",
	},
	order.StatusPaid: {
		Title:   "Pagamento Confirmado",
		Message: "Seu pagamento foi confirmado! Estamos preparando seu pedido para envio.",
	},
	order.StatusPreparing: {
		Title:   "Pedido em Preparação",
		Message: "Seu pedido está sendo preparado para envio.",
	},
	order.StatusShipped: {
		Title:   "Pedido Enviado",
		Message: "Seu pedido foi enviado e está a caminho!",
	},
	order.StatusDelivered: {
		Title:   "Pedido Entregue",
		Message: "Seu pedido foi entregue. Obrigado pela preferência!",
	},
	order.StatusCanceled: {
		Title:   "Pedido Cancelado",
		Message: "Seu pedido foi cancelado.",
	},
	order.StatusRefunded: {
		Title:   "Pedido Reembolsado",
		Message: "O valor do seu pedido foi estornado. O prazo de crédito depende do meio de pagamento.",
	},
}

var fallbackCopy = Copy{Title: "Atualização do Pedido", Message: "Status do pedido atualizado."}

// CopyFor returns the text for status.
func CopyFor(status order.Status) Copy {
	if c, ok := statusCopy[status]; ok {
		return c
	}
	return fallbackCopy
}

// Message is a rendered e-mail.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Subject builds "<title> - Pedido #<id>".
func Subject(o *order.Order) string {
	return CopyFor(o.Status).Title + " - Pedido #" + strconv.FormatInt(o.ID, 10)
}

type emailView struct {
	Store    string
	Copy     Copy
	OrderID  int64
	Status   string
	Tracking string
	Deadline string
	Items    []emailItem
	Total    string
	Link     string
}

type emailItem struct {
	Name     string
	Quantity int
	Subtotal string
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="UTF-8"><title>{{.Copy.Title}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px;">
<table width="600" cellpadding="0" cellspacing="0" style="margin: 0 auto; background-color: #ffffff;">
<tr><td style="background-color: #111111; padding: 30px; text-align: center;">
<h1 style="color: #ffffff; margin: 0;">{{.Copy.Title}}</h1>
</td></tr>
<tr><td style="padding: 30px;">
<p>{{.Copy.Message}}</p>
<p><strong>Número do Pedido:</strong> #{{.OrderID}}<br><strong>Status:</strong> {{.Status}}</p>
{{- if .Tracking}}
<p><strong>Código de rastreio:</strong> {{.Tracking}}{{if .Deadline}}<br><strong>Previsão de entrega:</strong> {{.Deadline}}{{end}}</p>
{{- end}}
<h3>Resumo do Pedido</h3>
<table width="100%">
{{- range .Items}}
<tr><td>{{.Quantity}}x {{.Name}}</td><td style="text-align: right;">{{.Subtotal}}</td></tr>
{{- end}}
<tr><td><strong>Total</strong></td><td style="text-align: right;"><strong>{{.Total}}</strong></td></tr>
</table>
{{- if .Link}}
<p style="text-align: center;"><a href="{{.Link}}">Ver Detalhes do Pedido</a></p>
{{- end}}
</td></tr>
<tr><td style="padding: 20px; text-align: center; color: #999999; font-size: 12px;">{{.Store}}</td></tr>
</table>
</body>
</html>`))

// Renderer builds customer e-mails for order status changes.
type Renderer struct {
	Store   string
	BaseURL string
}

// Render produces the e-mail for the order's current status.
func (r Renderer) Render(o *order.Order) (Message, error) {
	v := emailView{
		Store:    r.Store,
		Copy:     CopyFor(o.Status),
		OrderID:  o.ID,
		Status:   o.Status.Label(),
		Tracking: o.TrackingCode,
		Total:    FormatBRL(o.Total),
	}
	if o.DeliveryDeadline != nil {
		v.Deadline = o.DeliveryDeadline.Format("02/01/2006")
	}
	if r.BaseURL != "" {
		v.Link = strings.TrimRight(r.BaseURL, "/") + "/pedidos/" + strconv.FormatInt(o.ID, 10)
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, emailItem{Name: it.Name, Quantity: it.Quantity, Subtotal: FormatBRL(it.Subtotal)})
	}

	var b strings.Builder
	if err := emailTemplate.Execute(&b, v); err != nil {
		return Message{}, errors.Wrap(err, "render email")
	}

	text := v.Copy.Title + "\n\n" + v.Copy.Message + "\n\nPedido #" + strconv.FormatInt(o.ID, 10) +
		" - " + v.Status + "\nTotal: " + v.Total
	if v.Tracking != "" {
		text += "\nRastreio: " + v.Tracking
	}
	return Message{Subject: Subject(o), HTML: b.String(), Text: text}, nil
}

// FormatBRL formats d as Brazilian currency, e.g. "R$ 1.234,50".
func FormatBRL(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}
