package chat

// Role is a closed two-variant enum. The support desk only knows staff
// members and customers; there is no third kind of account.
type Role string

const (
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

// CanContact tells whether a user of role `from` may start a conversation
// with a user of role `to`. Customers talk to staff and staff talk to
// customers, never same-role pairs.
func CanContact(from, to Role) bool {
	return from != to && (from == RoleStaff || from == RoleCustomer) &&
		(to == RoleStaff || to == RoleCustomer)
}
