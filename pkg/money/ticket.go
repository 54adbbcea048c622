package money

import "strings"

// TicketID returns the POS identifier of a ticket payload.
func TicketID(ticket map[string]interface{}) string {
	return stringValue(ticket["id"])
}

func TicketNumber(ticket map[string]interface{}) string {
	if n := stringValue(ticket["ticket_number"]); n != "" {
		return n
	}
	return stringValue(ticket["number"])
}

// IsOpen trusts an explicit "open" flag and otherwise treats a ticket
// without closed_at as open.
func IsOpen(ticket map[string]interface{}) bool {
	if v, ok := ticket["open"]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			return strings.EqualFold(b, "true")
		}
	}
	return ticket["closed_at"] == nil
}

// ServerName prefers the employee's check name, then first + last name.
func ServerName(ticket map[string]interface{}) string {
	employee := mapValue(mapValue(ticket, "_embedded"), "employee")
	if employee == nil {
		employee = mapValue(ticket, "employee")
	}
	if employee != nil {
		if name := strings.TrimSpace(stringValue(employee["check_name"])); name != "" {
			return name
		}
		full := strings.TrimSpace(stringValue(employee["first_name"]) + " " + stringValue(employee["last_name"]))
		if full != "" {
			return full
		}
	}
	return strings.TrimSpace(stringValue(ticket["server_name"]))
}

// MatchString is the lower-cased haystack used for check-hint lookups.
func MatchString(ticket map[string]interface{}) string {
	parts := []string{
		TicketID(ticket),
		TicketNumber(ticket),
		ServerName(ticket),
		stringValue(ticket["name"]),
	}
	if employee := mapValue(mapValue(ticket, "_embedded"), "employee"); employee != nil {
		parts = append(parts,
			stringValue(employee["first_name"]),
			stringValue(employee["last_name"]),
			stringValue(employee["check_name"]),
		)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
