package controller

import (
	"html/template"

	"github.com/ikkim/tabline-backend/pkg/money"
)

const verifyPage = `{{define "verify.html"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Confirm your tab</title>
</head>
<body>
<main>
{{if .Invalid}}
  <h1>Link unavailable</h1>
  <p class="error">{{.Error}}</p>
  <p>Ask your server to send a new link.</p>
{{else}}
  <h1>{{.RestaurantName}}</h1>
  <p>Enter your 4-digit PIN to open your tab{{if .TicketID}} on check {{.TicketID}}{{end}}.</p>
  {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
  <form method="post" action="{{.Action}}">
    <input type="hidden" name="t" value="{{.Token}}">
    <input name="pin" inputmode="numeric" pattern="[0-9]{4}" maxlength="4" autocomplete="one-time-code" required autofocus>
    <button type="submit">Open tab</button>
  </form>
{{end}}
</main>
</body>
</html>{{end}}`

const profilePage = `{{define "profile.html"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Your tab</title>
</head>
<body>
<main>
  <h1>Member {{.MemberNumber}}</h1>
  {{with .Live}}
  <section>
    <h2>{{.Merchant.Name}} &middot; check #{{.TicketNumber}}</h2>
    {{if .Stale}}<p class="warning">Showing the last known total.</p>{{end}}
    <table>
      {{range .Items}}<tr><td>{{.Quantity}} &times; {{.Name}}</td><td>${{dollars .LineCents}}</td></tr>{{end}}
      <tr><td>Subtotal</td><td>${{dollars .SubtotalCents}}</td></tr>
      <tr><td>Tax</td><td>${{dollars .TaxCents}}</td></tr>
      <tr><th>Due</th><th>${{dollars .DueCents}}</th></tr>
    </table>
  </section>
  {{else}}
  <p>No open tab.</p>
  {{end}}
  {{if .History}}
  <section>
    <h2>Past tabs</h2>
    <ul>
      {{range .History}}<li>{{.MerchantName}} &middot; #{{.TicketNumber}} &middot; ${{dollars .PaidCents}}</li>{{end}}
    </ul>
  </section>
  {{end}}
</main>
</body>
</html>{{end}}`

// Templates returns the server-rendered member pages for gin's
// SetHTMLTemplate.
func Templates() *template.Template {
	return template.Must(template.New("pages").Funcs(template.FuncMap{
		"dollars": money.FormatDollars,
	}).Parse(verifyPage + profilePage))
}
